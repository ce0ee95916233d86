package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakePublisher struct {
	published map[string][]byte
	failFor   string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if channel == f.failFor {
		return errors.New("boom")
	}
	if f.published == nil {
		f.published = map[string][]byte{}
	}
	f.published[channel] = payload
	return nil
}

func TestPublishAllMarshalsEachRepoChange(t *testing.T) {
	fp := &fakePublisher{}
	changes := []RepoChange{
		{Repo: "amd64/stable", Added: []string{"foo=1.0-1"}},
	}
	errs := PublishAll(context.Background(), fp, "repovector-changes", changes)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	raw, ok := fp.published["repovector-changes"]
	if !ok {
		t.Fatal("expected a publish on repovector-changes")
	}
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if m.Repo != "amd64/stable" || len(m.Added) != 1 {
		t.Errorf("unexpected message: %+v", m)
	}
}

func TestPublishAllContinuesPastFailures(t *testing.T) {
	fp := &fakePublisher{failFor: "repovector-changes"}
	changes := []RepoChange{
		{Repo: "amd64/stable", Added: []string{"foo=1.0-1"}},
		{Repo: "arm64/stable", Added: []string{"bar=1.0-1"}},
	}
	errs := PublishAll(context.Background(), fp, "repovector-changes", changes)
	if len(errs) != 2 {
		t.Fatalf("expected both publishes to fail on this channel, got %d errors", len(errs))
	}
}
