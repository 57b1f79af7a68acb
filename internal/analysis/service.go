package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/pkg/scoresvc"
)

// ServiceAdapter calls the external scoring microservice. When the service
// cannot be reached within its timeout, the same call degrades to the
// secondary adapter before the driver counts a failure.
type ServiceAdapter struct {
	client    scoresvc.Client
	secondary Adapter
	onDegrade func(ctx context.Context, in Input, cause error)
}

// NewServiceAdapter creates the microservice backend. secondary may be nil.
func NewServiceAdapter(client scoresvc.Client, secondary Adapter) *ServiceAdapter {
	return &ServiceAdapter{client: client, secondary: secondary}
}

// OnDegrade registers a hook called each time a call falls back to the
// secondary adapter.
func (s *ServiceAdapter) OnDegrade(fn func(ctx context.Context, in Input, cause error)) {
	s.onDegrade = fn
}

func (s *ServiceAdapter) Name() string { return BackendService }

// Policy is the intersection of the service's limits and the secondary's,
// so a degraded call never receives a file it cannot handle.
func (s *ServiceAdapter) Policy() FilePolicy {
	p := FilePolicy{MaxBytes: 10 << 20, ContentTypes: pdfAndScans}
	if s.secondary == nil {
		return p
	}
	sec := s.secondary.Policy()
	p = p.Capped(sec.MaxBytes)
	if len(sec.ContentTypes) > 0 {
		allowed := make(map[string]bool, len(sec.ContentTypes))
		for _, ct := range sec.ContentTypes {
			allowed[ct] = true
		}
		var both []string
		for _, ct := range p.ContentTypes {
			if allowed[ct] {
				both = append(both, ct)
			}
		}
		p.ContentTypes = both
	}
	return p
}

func (s *ServiceAdapter) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	req := scoresvc.AnalyzeRequest{
		AssessmentID:   in.AssessmentID,
		AssessmentType: string(in.Type),
		Responses:      in.Responses,
		PersonalInfo:   redactInfo(in.PersonalInfo),
	}
	if in.Resume != nil {
		req.Resume = &scoresvc.Document{
			Name:        in.Resume.Name,
			ContentType: NormalizeContentType(in.Resume.ContentType),
			Data:        in.Resume.Data,
		}
	}

	body, err := s.client.Analyze(ctx, req)
	if err != nil {
		if s.secondary != nil && ctx.Err() == nil && resilience.IsUnreachable(err) {
			zap.L().Warn("analysis: scoring service unreachable, using secondary",
				zap.String("assessment_id", in.AssessmentID),
				zap.String("secondary", s.secondary.Name()),
				zap.Error(err),
			)
			if s.onDegrade != nil {
				s.onDegrade(ctx, in, err)
			}
			return s.secondary.Analyze(ctx, in)
		}
		return nil, classify(err, 0)
	}
	return ParseResult(string(body))
}
