package service

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/interview-proctoring/internal/repository"
	"github.com/RubachokBoss/interview-proctoring/pkg/hash"
)

type EvidenceService interface {
	CaptureSnapshot(ctx context.Context, candidateID, interviewID string, jpeg []byte) (string, error)
}

type evidenceService struct {
	snapshots repository.SnapshotRepository
	hasher    *hash.Hasher
}

func NewEvidenceService(snapshots repository.SnapshotRepository) EvidenceService {
	return &evidenceService{snapshots: snapshots, hasher: hash.MustNew(hash.SHA256)}
}

// CaptureSnapshot stores the frame under its content digest, so the key
// doubles as a tamper check and a repeated frame is stored once.
func (s *evidenceService) CaptureSnapshot(ctx context.Context, candidateID, interviewID string, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", fmt.Errorf("empty snapshot")
	}

	key := repository.SnapshotKey(candidateID, interviewID, s.hasher.Calculate(jpeg))
	if err := s.snapshots.Put(ctx, key, jpeg); err != nil {
		return "", err
	}
	return key, nil
}
