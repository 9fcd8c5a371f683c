package crew

import (
	"context"
	"fmt"

	mesherrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/crew"
)

// InterviewResult reports the questions generated for the host's interview
// tool.
type InterviewResult struct {
	Questions []Question `json:"questions"`
	Path      string     `json:"path"`
}

// Interview invokes the interview-generator with the PRD (or, when a plan
// already exists, the plan document) and writes the parsed questions to the
// canonical JSON file.
func (o *Orchestrator) Interview(ctx context.Context, explicitPRD string) (*InterviewResult, error) {
	if err := o.guardRecursion(); err != nil {
		return nil, err
	}

	var content string
	if plan, err := o.store.LoadPlan(); err == nil {
		content = o.planSlice()
		if content == "" {
			content = "PRD: " + plan.PRDPath
		}
	} else {
		prdPath, err := o.discoverPRD(explicitPRD)
		if err != nil {
			return nil, err
		}
		content, err = readPRD(prdPath)
		if err != nil {
			return nil, err
		}
	}

	def, err := o.store.ResolveRole(crew.RoleInterviewer)
	if err != nil {
		return nil, mesherrors.Wrap(err, mesherrors.ErrCodeInternal, "no usable interviewer agent")
	}

	prompt := fmt.Sprintf("%s\n\nGenerate clarification questions for:\n%s", def.Preamble, content)
	sp := o.newSpawner(newRunID())
	output, err := o.invokeRole(ctx, sp, crew.RoleInterviewer, prompt, "interview", 0)
	if err != nil {
		return nil, err
	}

	questions := parseQuestions(output)
	if len(questions) == 0 {
		return nil, mesherrors.New(mesherrors.ErrCodeInternal,
			"interview generator produced no parseable questions")
	}

	doc := map[string]interface{}{"questions": questions}
	if err := atomicio.WriteJSON(o.store.InterviewPath(), doc); err != nil {
		return nil, err
	}
	return &InterviewResult{Questions: questions, Path: o.store.InterviewPath()}, nil
}
