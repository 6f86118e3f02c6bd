package mongo

import (
	"sort"
	"testing"
	"time"

	domainchat "campusxchange/internal/domain/chat"
)

func TestAppendStampsMonotonicSequence(t *testing.T) {
	t.Parallel()
	repo := &MessageRepository{}

	// Two sends serialized microseconds apart land on the same
	// millisecond timestamp.
	at := time.UnixMilli(1700000000123).UTC()
	first, err := domainchat.NewMessage("conv-1", "buyer", "first", at)
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	second, err := domainchat.NewMessage("conv-1", "buyer", "second", at.Add(200*time.Microsecond))
	if err != nil {
		t.Fatalf("second message: %v", err)
	}

	docA := repo.nextDocument(first)
	docB := repo.nextDocument(second)

	if docA.CreatedAt != docB.CreatedAt {
		t.Fatalf("created_at: got %d and %d, want a same-millisecond collision", docA.CreatedAt, docB.CreatedAt)
	}
	if docB.Seq <= docA.Seq {
		t.Errorf("seq: got %d then %d, want strictly increasing", docA.Seq, docB.Seq)
	}
}

func TestSequenceOrdersSameMillisecondRows(t *testing.T) {
	t.Parallel()
	repo := &MessageRepository{}

	at := time.UnixMilli(1700000000123).UTC()
	var docs []messageDocument
	for _, text := range []string{"one", "two", "three"} {
		msg, err := domainchat.NewMessage("conv-1", "buyer", text, at)
		if err != nil {
			t.Fatalf("message %q: %v", text, err)
		}
		docs = append(docs, repo.nextDocument(msg))
	}

	// Sort the rows the way List does: created_at desc, seq desc. The
	// timestamps all collide, so the sequence alone must recover
	// append order.
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt != docs[j].CreatedAt {
			return docs[i].CreatedAt > docs[j].CreatedAt
		}
		return docs[i].Seq > docs[j].Seq
	})

	want := []string{"three", "two", "one"}
	for i, text := range want {
		if docs[i].Text != text {
			t.Errorf("newest-first position %d: got %q, want %q", i, docs[i].Text, text)
		}
	}
}
