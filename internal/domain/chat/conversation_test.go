package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewConversation(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv, err := NewConversation(NewConversationParams{
		BuyerID:   " buyer ",
		SellerID:  "seller",
		ListingID: "listing-1",
		Retention: 48 * time.Hour,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if conv.BuyerID != "buyer" {
		t.Errorf("buyer id not trimmed: %q", conv.BuyerID)
	}
	if conv.Closed {
		t.Error("new conversation must be open")
	}
	if conv.Unread != (UnreadCounters{}) {
		t.Errorf("unread counters not zero: %+v", conv.Unread)
	}
	if want := now.Add(48 * time.Hour); !conv.ExpiresAt.Equal(want) {
		t.Errorf("expiry: got %v, want %v", conv.ExpiresAt, want)
	}
}

func TestNewConversationRejectsSelf(t *testing.T) {
	t.Parallel()
	_, err := NewConversation(NewConversationParams{
		BuyerID:   "same",
		SellerID:  "same",
		ListingID: "listing-1",
	})
	if !errors.Is(err, ErrSelfConversation) {
		t.Errorf("got %v, want ErrSelfConversation", err)
	}
}

func TestNewConversationRejectsBlankIdentifiers(t *testing.T) {
	t.Parallel()
	_, err := NewConversation(NewConversationParams{BuyerID: "buyer", SellerID: "  ", ListingID: "listing-1"})
	if !errors.Is(err, ErrMissingIdentifiers) {
		t.Errorf("got %v, want ErrMissingIdentifiers", err)
	}
}

func TestConversationRoles(t *testing.T) {
	t.Parallel()
	conv := &Conversation{BuyerID: "buyer", SellerID: "seller"}

	if role, ok := conv.RoleOf("buyer"); !ok || role != RoleBuyer {
		t.Errorf("RoleOf(buyer): got %v %v", role, ok)
	}
	if role, ok := conv.RoleOf("seller"); !ok || role != RoleSeller {
		t.Errorf("RoleOf(seller): got %v %v", role, ok)
	}
	if _, ok := conv.RoleOf("snoop"); ok {
		t.Error("RoleOf(snoop) granted a role")
	}
	if conv.HasParticipant("") {
		t.Error("empty user id counted as participant")
	}
	if peer := conv.PeerOf("buyer"); peer != "seller" {
		t.Errorf("PeerOf(buyer): got %q, want seller", peer)
	}
	if peer := conv.PeerOf("seller"); peer != "buyer" {
		t.Errorf("PeerOf(seller): got %q, want buyer", peer)
	}
}

func TestConversationExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	conv := &Conversation{ExpiresAt: now.Add(time.Minute)}
	if conv.Expired(now) {
		t.Error("future expiry reported expired")
	}
	if !conv.Expired(now.Add(2 * time.Minute)) {
		t.Error("past expiry reported live")
	}
	if (&Conversation{}).Expired(now) {
		t.Error("zero expiry must never expire")
	}
}

func TestUnreadForRole(t *testing.T) {
	t.Parallel()
	u := UnreadCounters{Buyer: 2, Seller: 7}
	if got := u.ForRole(RoleBuyer); got != 2 {
		t.Errorf("ForRole(buyer): got %d, want 2", got)
	}
	if got := u.ForRole(RoleSeller); got != 7 {
		t.Errorf("ForRole(seller): got %d, want 7", got)
	}
}

func TestNewMessageValidatesText(t *testing.T) {
	t.Parallel()
	if _, err := NewMessage("conv", "sender", "  \n ", time.Now()); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text: got %v, want ErrEmptyText", err)
	}
	msg, err := NewMessage("conv", "sender", "  hello  ", time.Now())
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("text not trimmed: %q", msg.Text)
	}
}

func TestMessageSnippet(t *testing.T) {
	t.Parallel()
	short := &Message{Text: "hi"}
	if short.Snippet() != "hi" {
		t.Errorf("short snippet: got %q", short.Snippet())
	}
	long := &Message{Text: strings.Repeat("é", SummaryLimit+10)}
	if got := len([]rune(long.Snippet())); got != SummaryLimit {
		t.Errorf("long snippet length: got %d, want %d", got, SummaryLimit)
	}
}
