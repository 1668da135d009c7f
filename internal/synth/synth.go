// Package synth produces synthetic grading responses for exams whose copies
// cannot be graded by a real provider. The output follows the same raw
// contract as the grading service, so it goes through the normal pipeline.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/examdesk/gradebook/internal/model"
)

// QuestionsPerCopy is the number of questions generated for each copy.
const QuestionsPerCopy = 5

var (
	commentsFull    = []string{"Très bonne réponse", "Excellent", "Réponse complète"}
	commentsPartial = []string{"Réponse partielle, développer un exemple", "Manque de précision", "Bonne idée, mais manque de détails"}
	commentsZero    = []string{"Réponse incorrecte", "Hors sujet", "Aucune réponse"}
	mcqChoices      = []string{"A", "B", "C", "D"}
)

// Provider generates random but plausible grading results.
type Provider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a provider. The same seed always yields the same results.
func New(seed uint64) *Provider {
	return &Provider{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Grade returns a raw grading response with one entry per submission.
func (p *Provider) Grade(ctx context.Context, _ model.Exam, subs []model.Submission) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	resp := model.RawGradingResponse{Resultat: make(map[string]json.RawMessage, len(subs))}
	for i, s := range subs {
		data, err := json.Marshal(p.gradeCopy(s))
		if err != nil {
			return nil, fmt.Errorf("encode copy %s: %w", s.ID, err)
		}
		resp.Resultat["copie_"+strconv.Itoa(i+1)] = data
	}
	return json.Marshal(resp)
}

func (p *Provider) gradeCopy(s model.Submission) model.RawCopy {
	rc := model.RawCopy{DBID: s.ID, NomFichier: s.DisplayName}
	for n := 1; n <= QuestionsPerCopy; n++ {
		rc.Questions = append(rc.Questions, p.question(n))
	}
	return rc
}

func (p *Provider) question(n int) model.RawQuestion {
	qType := p.questionType()

	var maxPoints, points int
	var comment string
	switch qType {
	case model.QuestionMCQ:
		maxPoints = p.rng.IntN(2) + 1
		if p.rng.Float64() < 0.6 {
			points = maxPoints
		}
		comment = p.pickComment(points, maxPoints)
	case model.QuestionShort:
		maxPoints = p.rng.IntN(3) + 2
		switch r := p.rng.Float64(); {
		case r < 0.25:
			points = 0
		case r < 0.65:
			points = p.rng.IntN(maxPoints)
		default:
			points = maxPoints
		}
		comment = p.pickComment(points, maxPoints)
	default:
		maxPoints = p.rng.IntN(4) + 3
		switch r := p.rng.Float64(); {
		case r < 0.15:
			points = 0
		case r < 0.5:
			points = p.rng.IntN(max(1, maxPoints/2))
		case r < 0.85:
			points = p.rng.IntN(maxPoints-1) + 1
		default:
			points = maxPoints
		}
		switch points {
		case maxPoints:
			comment = "Très bon développement, arguments et exemples pertinents"
		case 0:
			comment = "Travail insuffisant, développer vos arguments"
		default:
			comment = "Bonne structure, développer davantage certains points"
		}
	}

	answer := p.answer(qType)
	return model.RawQuestion{
		Num:         number(n),
		Type:        string(qType),
		Reponse:     &answer,
		Point:       number(points),
		MaxPoints:   number(maxPoints),
		Commentaire: comment,
	}
}

func (p *Provider) questionType() model.QuestionType {
	switch r := p.rng.Float64(); {
	case r < 0.5:
		return model.QuestionMCQ
	case r < 0.8:
		return model.QuestionShort
	default:
		return model.QuestionEssay
	}
}

func (p *Provider) pickComment(points, maxPoints int) string {
	pool := commentsPartial
	switch points {
	case maxPoints:
		pool = commentsFull
	case 0:
		pool = commentsZero
	}
	return pool[p.rng.IntN(len(pool))]
}

func (p *Provider) answer(t model.QuestionType) string {
	if t == model.QuestionMCQ {
		return mcqChoices[p.rng.IntN(len(mcqChoices))]
	}
	if p.rng.Float64() < 0.5 {
		return "Réponse courte"
	}
	return "Réponse rédigée"
}

func number(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}
