// ABOUTME: Tests for the chat history store
// ABOUTME: Tests append ordering, rollback, clear, and change notification
package history

import "testing"

func TestAppendOrdering(t *testing.T) {
	s := NewStore()
	s.Append(RoleUser, "hello")
	s.Append(RoleModel, "hi there")
	s.Append(RoleUser, "how are you")

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Text != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleModel {
		t.Errorf("expected model role second, got %s", msgs[1].Role)
	}
}

func TestUniqueIDs(t *testing.T) {
	s := NewStore()
	a := s.Append(RoleUser, "one")
	b := s.Append(RoleUser, "two")
	if a.ID == b.ID {
		t.Errorf("expected unique IDs, both were %s", a.ID)
	}
}

func TestRemoveRollsBackOptimisticEntry(t *testing.T) {
	s := NewStore()
	s.Append(RoleUser, "kept")
	optimistic := s.Append(RoleUser, "doomed")

	if !s.Remove(optimistic.ID) {
		t.Fatal("expected removal to succeed")
	}
	if s.Len() != 1 {
		t.Errorf("expected history length back to 1, got %d", s.Len())
	}
	if s.Messages()[0].Text != "kept" {
		t.Errorf("wrong message removed")
	}

	if s.Remove("no-such-id") {
		t.Error("expected removal of unknown id to fail")
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Append(RoleUser, "a")
	s.Append(RoleModel, "b")
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d messages", s.Len())
	}
}

func TestOnChangeNotification(t *testing.T) {
	s := NewStore()

	var snapshots [][]Message
	s.SetOnChange(func(msgs []Message) {
		snapshots = append(snapshots, msgs)
	})

	s.Append(RoleUser, "x")
	msg := s.Append(RoleModel, "y")
	s.Remove(msg.ID)
	s.Clear()

	if len(snapshots) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(snapshots))
	}
	if len(snapshots[1]) != 2 {
		t.Errorf("expected second snapshot to hold 2 messages, got %d", len(snapshots[1]))
	}
	if len(snapshots[3]) != 0 {
		t.Errorf("expected final snapshot empty, got %d", len(snapshots[3]))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.Append(RoleUser, "original")

	msgs := s.Messages()
	msgs[0].Text = "mutated"

	if s.Messages()[0].Text != "original" {
		t.Error("external mutation leaked into the store")
	}
}
