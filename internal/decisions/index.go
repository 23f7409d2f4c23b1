package decisions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/liquidmail/liquid-mail/internal/honcho"
)

// Metadata keys and values on indexed decision messages.
const (
	MetaKind            = "lm.kind"
	MetaSchemaVersion   = "lm.schema_version"
	MetaSourceMessageID = "lm.source_message_id"
	MetaDecisionID      = "lm.decision_id"

	KindDecision  = "decision"
	SchemaVersion = "1"
)

// Backend is what the indexer needs from the remote store.
type Backend interface {
	Searcher
	CreateMessage(ctx context.Context, sessionID string, msg honcho.MessageCreate) (*honcho.Message, error)
}

// IndexResult lists the decision messages written. Skipped is true when
// there was nothing to write or the source was indexed before.
type IndexResult struct {
	CreatedIDs []string `json:"created_ids"`
	Skipped    bool     `json:"skipped"`
}

// Indexer posts each decision of a source message into its topic as a
// system-peer "DECISION: ..." message, once per source message.
type Indexer struct {
	Backend      Backend
	SystemPeerID string
}

// Index writes decisions taken from sourceMessageID into topicID.
func (ix *Indexer) Index(ctx context.Context, topicID, sourceMessageID string, decisions []string) (*IndexResult, error) {
	if len(decisions) == 0 {
		return &IndexResult{CreatedIDs: []string{}, Skipped: true}, nil
	}

	existing, err := ix.Backend.Search(ctx, honcho.SearchRequest{
		Query: sourceMessageID,
		Limit: 1,
		Filters: honcho.BuildSearchFilters(honcho.FilterParams{
			SessionIDs: []string{topicID},
			Metadata: map[string]honcho.MetadataFilter{
				MetaKind:            honcho.MetadataEq(KindDecision),
				MetaSourceMessageID: honcho.MetadataEq(sourceMessageID),
			},
		}),
	})
	if err != nil {
		return nil, err
	}
	if len(existing.Matches) > 0 {
		return &IndexResult{CreatedIDs: []string{}, Skipped: true}, nil
	}

	res := &IndexResult{CreatedIDs: make([]string, 0, len(decisions))}
	for _, d := range decisions {
		msg, err := ix.Backend.CreateMessage(ctx, topicID, honcho.MessageCreate{
			PeerID:  ix.SystemPeerID,
			Content: "DECISION: " + d,
			Metadata: honcho.Metadata{
				MetaSchemaVersion:   SchemaVersion,
				MetaKind:            KindDecision,
				MetaSourceMessageID: sourceMessageID,
				MetaDecisionID:      DecisionID(sourceMessageID, d),
			},
		})
		if err != nil {
			return res, fmt.Errorf("index decision: %w", err)
		}
		res.CreatedIDs = append(res.CreatedIDs, msg.ID)
	}
	return res, nil
}

// DecisionID is the stable id of decision d taken from sourceMessageID.
func DecisionID(sourceMessageID, d string) string {
	sum := sha256.Sum256([]byte(sourceMessageID + ":" + d))
	return hex.EncodeToString(sum[:])
}
