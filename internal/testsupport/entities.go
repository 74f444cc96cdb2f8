package testsupport

import (
	"context"
	"errors"
	"sync"

	"avatarforge/internal/entity"
	"avatarforge/internal/services"
)

// EntityStore is an in-memory entity.Store that records every marker write.
type EntityStore struct {
	mu       sync.Mutex
	inputs   map[entity.Ref]entity.Inputs
	markers  map[entity.Ref]entity.Marker
	paths    map[entity.Ref]string
	history  map[entity.Ref][]entity.Marker
	failNext error
}

// NewEntityStore returns an empty store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		inputs:  make(map[entity.Ref]entity.Inputs),
		markers: make(map[entity.Ref]entity.Marker),
		paths:   make(map[entity.Ref]string),
		history: make(map[entity.Ref][]entity.Marker),
	}
}

// AddFAQ registers a FAQ answer target.
func (s *EntityStore) AddFAQ(id int64, text, gender, iconPath string) entity.Ref {
	ref := entity.FAQAnswer(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[ref] = entity.Inputs{Text: text, VoiceGender: gender, AvatarPath: iconPath, Name: "FAQ"}
	return ref
}

// AddChatbot registers both chatbot slots.
func (s *EntityStore) AddChatbot(id int64, name, gender, iconPath string) []entity.Ref {
	refs := entity.ChatbotPair(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		s.inputs[ref] = entity.Inputs{VoiceGender: gender, AvatarPath: iconPath, Name: name}
	}
	return refs
}

// SetArtifact seeds an existing artifact path.
func (s *EntityStore) SetArtifact(ref entity.Ref, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[ref] = path
}

// FailWrites makes every marker write return err until called with nil.
func (s *EntityStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *EntityStore) ReadRenderInputs(_ context.Context, ref entity.Ref) (entity.Inputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inputs, ok := s.inputs[ref]
	if !ok {
		return entity.Inputs{}, services.Wrap(services.ErrNotFound, "entity", "read inputs", ref.String()+" does not exist", nil)
	}
	return inputs, nil
}

func (s *EntityStore) WriteRenderMarker(_ context.Context, ref entity.Ref, marker entity.Marker, artifact *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	if _, ok := s.inputs[ref]; !ok {
		return errors.New("unknown entity " + ref.String())
	}
	s.markers[ref] = marker
	s.history[ref] = append(s.history[ref], marker)
	if artifact != nil {
		if *artifact == "" {
			delete(s.paths, ref)
		} else {
			s.paths[ref] = *artifact
		}
	}
	return nil
}

// Marker returns the current marker of ref.
func (s *EntityStore) Marker(ref entity.Ref) entity.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[ref]
}

// Artifact returns the stored artifact path of ref.
func (s *EntityStore) Artifact(ref entity.Ref) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[ref]
}

// History returns every marker written for ref in order.
func (s *EntityStore) History(ref entity.Ref) []entity.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Marker(nil), s.history[ref]...)
}
