package profile

import (
	"context"
	"log/slog"
	"time"

	"github.com/antoniostano/baziview/internal/bazi"
)

// Service creates profiles and reads them back.
type Service struct {
	store    Store
	analyses *bazi.AnalysisLibrary
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(store Store, analyses *bazi.AnalysisLibrary, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, analyses: analyses, now: time.Now, logger: logger}
}

// Create validates the input, attaches the chart and a sampled analysis, and
// saves the profile. An existing profile with the same id is replaced.
func (s *Service) Create(ctx context.Context, in bazi.ProfileInput) (bazi.Profile, error) {
	p, err := bazi.NewProfile(in, s.now())
	if err != nil {
		return bazi.Profile{}, err
	}
	chart := bazi.GenerateChart(p)
	p.Chart = &chart

	if doc, err := s.analyses.Pick(); err != nil {
		s.logger.Warn("profile: no analysis available", "profile_id", p.ID, "err", err)
	} else {
		p.AppendAnalysis(doc.Content)
	}

	if err := s.store.Save(ctx, p); err != nil {
		return bazi.Profile{}, err
	}
	s.logger.Info("profile: saved", "profile_id", p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (bazi.Profile, error) {
	return s.store.Load(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]bazi.Profile, error) {
	return s.store.LoadAll(ctx)
}
