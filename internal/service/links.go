package service

import (
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/notary"
)

type evidenceURLResolver interface {
	ReadURL(reference string) (string, error)
}

// Linker turns stored references into client-facing URLs.
type Linker struct {
	evidence     evidenceURLResolver
	explorerBase string
	logger       *zap.Logger
}

// NewLinker constructs a Linker. Either dependency may be empty.
func NewLinker(evidence evidenceURLResolver, explorerBase string, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{evidence: evidence, explorerBase: explorerBase, logger: logger}
}

func (l *Linker) decorateComplaints(views []models.ComplaintView) {
	if l == nil {
		return
	}
	for i := range views {
		v := &views[i]
		if l.evidence != nil && v.EvidenceReference != "" {
			url, err := l.evidence.ReadURL(v.EvidenceReference)
			if err != nil {
				l.logger.Warn("cannot resolve evidence url", zap.String("complaint_id", v.ID), zap.Error(err))
			} else {
				v.EvidenceURL = url
			}
		}
		v.ExplorerURL = l.explorer(v.NotarizationHash)
	}
}

func (l *Linker) decorateEntries(entries []models.StudentActivity) {
	if l == nil {
		return
	}
	for i := range entries {
		entries[i].ExplorerURL = l.explorer(entries[i].NotarizationReference)
	}
}

func (l *Linker) explorer(hash *string) string {
	if l == nil || hash == nil {
		return ""
	}
	return notary.ExplorerLink(l.explorerBase, *hash)
}
