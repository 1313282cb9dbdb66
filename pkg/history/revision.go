package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRevision builds a revision record for a composed document tree.
// The tree is marshaled with sorted keys, so equal trees hash identically.
func NewRevision(documentID, documentType, mode string, op RevisionOperation, tree map[string]any) (*Revision, error) {
	content, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document content: %w", err)
	}

	sum := sha256.Sum256(content)

	return &Revision{
		ID:           uuid.New().String(),
		DocumentID:   documentID,
		DocumentType: documentType,
		Mode:         mode,
		Operation:    op,
		Hash:         hex.EncodeToString(sum[:]),
		Size:         int64(len(content)),
		Content:      string(content),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// EncodeDetail marshals a value into the nullable JSON blob columns used
// by revisions and drift events. A nil value yields a NULL column.
func EncodeDetail(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detail: %w", err)
	}

	s := string(data)
	return &s, nil
}
