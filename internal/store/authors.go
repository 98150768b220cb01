package store

import (
	"context"
	"fmt"
	"time"

	"typetalk/api/internal/docstore"
)

// Authors resolves both author variants and maintains the anonymous
// participant records.
type Authors struct {
	users  docstore.Collection
	randos docstore.Collection
}

func (a *Authors) GetRegistered(ctx context.Context, id string) (RegisteredUser, bool, error) {
	doc, found, err := a.users.FindOne(ctx, docstore.Eq("id", id))
	if err != nil {
		return RegisteredUser{}, false, fmt.Errorf("find user: %w", err)
	}
	if !found {
		return RegisteredUser{}, false, nil
	}
	var user RegisteredUser
	if err := fromDoc(doc, &user); err != nil {
		return RegisteredUser{}, false, err
	}
	return user, true, nil
}

func (a *Authors) GetAnonymous(ctx context.Context, id string) (AnonymousParticipant, bool, error) {
	doc, found, err := a.randos.FindOne(ctx, docstore.Eq("id", id))
	if err != nil {
		return AnonymousParticipant{}, false, fmt.Errorf("find rando: %w", err)
	}
	if !found {
		return AnonymousParticipant{}, false, nil
	}
	var rando AnonymousParticipant
	if err := fromDoc(doc, &rando); err != nil {
		return AnonymousParticipant{}, false, err
	}
	return rando, true, nil
}

func (a *Authors) InsertRegistered(ctx context.Context, user RegisteredUser) error {
	doc, err := toDoc(user)
	if err != nil {
		return err
	}
	if err := a.users.Insert(ctx, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// TrackQuestion records that the anonymous participant commented on the
// question, creating the participant record on first contact.
func (a *Authors) TrackQuestion(ctx context.Context, randoID, questionID string, now time.Time) error {
	matched, err := a.randos.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", randoID)},
		docstore.Patch{
			Set:    map[string]any{"dateModified": timestamp(now)},
			SetKey: map[string]string{"questions": questionID},
		})
	if err != nil {
		return fmt.Errorf("track question: %w", err)
	}
	if matched {
		return nil
	}

	doc, err := toDoc(AnonymousParticipant{
		ID:           randoID,
		Questions:    map[string]bool{questionID: true},
		DateCreated:  now,
		DateModified: now,
	})
	if err != nil {
		return err
	}
	if err := a.randos.Insert(ctx, doc); err != nil {
		return fmt.Errorf("insert rando: %w", err)
	}
	return nil
}
