package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/llm"
	"github.com/hyperjump/kotaeru/internal/sandbox"
)

// Retriever finds candidate files for a question, nearest first.
type Retriever interface {
	Search(ctx context.Context, question string) ([]*inventory.FileMetadataRecord, error)
}

// stage is the per-request pipeline state. Transitions are linear; any
// failure jumps straight to stageDone through the single error exit in Run.
type stage int

const (
	stageSearching stage = iota
	stageDescribing
	stageGenerating
	stageSanitizing
	stageStreamingCode
	stageExecuting
	stageStreamingData
	stageStreamingResult
	stageDone
)

// errSink marks a failed event emission: the client is unreachable, so no
// further events (including an error event) are attempted.
var errSink = errors.New("orchestrator: event sink failed")

// Orchestrator drives one request through the staged pipeline. It holds no
// per-request state and is safe for concurrent use across requests.
type Orchestrator struct {
	retriever Retriever
	generator llm.Client
	runner    sandbox.Runner
	logger    *zap.Logger
}

// New creates an orchestrator with the given collaborators.
func New(retriever Retriever, generator llm.Client, runner sandbox.Runner, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		runner:    runner,
		logger:    logger,
	}
}

// request carries one run's identifiers and intermediate stage outputs.
// Each stage's output is the next stage's input; nothing is shared across
// requests.
type request struct {
	question    string
	chatID      string
	responseID  string
	emit        Sink
	candidates  []*inventory.FileMetadataRecord
	chosen      *inventory.FileMetadataRecord
	description string
	code        string
	output      string
}

func (r *request) send(answer string, finished int, ct ContentType, cs ContentStatus) error {
	err := r.emit(Event{
		Answer:        answer,
		Finished:      finished,
		ContentType:   ct,
		ContentStatus: cs,
		ChatID:        r.chatID,
		ResponseID:    r.responseID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errSink, err)
	}
	return nil
}

// Run processes question, emitting every event for this request to emit in
// order. It always terminates the stream with exactly one finished event
// (result end, not-found error, or failure error), unless the sink itself
// fails, in which case the run stops without further emissions.
func (o *Orchestrator) Run(ctx context.Context, question string, emit Sink) {
	req := &request{
		question:   question,
		chatID:     uuid.New().String(),
		responseID: uuid.New().String(),
		emit:       emit,
	}
	o.logger.Info("processing question",
		zap.String("chat_id", req.chatID),
		zap.String("question", question))

	st := stageSearching
	for st != stageDone {
		next, err := o.step(ctx, st, req)
		if err != nil {
			if errors.Is(err, errSink) {
				o.logger.Warn("client gone, aborting stream", zap.String("chat_id", req.chatID), zap.Error(err))
				return
			}
			o.logger.Error("request failed", zap.String("chat_id", req.chatID), zap.Error(err))
			// Single terminal error event; progress already streamed stands.
			_ = req.send(fmt.Sprintf("❌ Error during analysis: %v", err), 1, ContentError, StatusEnd)
			return
		}
		st = next
	}
}

func (o *Orchestrator) step(ctx context.Context, st stage, req *request) (stage, error) {
	switch st {
	case stageSearching:
		if err := req.send("🔍 Searching for relevant spreadsheet files...", 0, ContentText, StatusStart); err != nil {
			return stageDone, err
		}
		candidates, err := o.retriever.Search(ctx, req.question)
		if err != nil {
			return stageDone, err
		}
		if len(candidates) == 0 {
			if err := req.send("❌ No relevant spreadsheet files found for your question.", 1, ContentError, StatusEnd); err != nil {
				return stageDone, err
			}
			return stageDone, nil
		}
		req.candidates = candidates
		req.chosen = candidates[0]
		return stageDescribing, nil

	case stageDescribing:
		// Lower-ranked candidates surface only in the summary count.
		msg := fmt.Sprintf("📊 Found %d relevant files. Using: %s", len(req.candidates), req.chosen.FileName)
		if err := req.send(msg, 0, ContentText, StatusInProgress); err != nil {
			return stageDone, err
		}
		req.description = req.chosen.Description()
		o.logger.Info("using file",
			zap.String("chat_id", req.chatID),
			zap.String("file", req.chosen.FileName))
		return stageGenerating, nil

	case stageGenerating:
		if err := req.send("🤖 Generating analysis code...", 0, ContentText, StatusInProgress); err != nil {
			return stageDone, err
		}
		code, err := o.generator.Complete(ctx, llm.CodeGenRequest(req.description, req.question, req.chosen.FilePath))
		if err != nil {
			return stageDone, fmt.Errorf("code generation: %w", err)
		}
		req.code = code
		return stageSanitizing, nil

	case stageSanitizing:
		req.code = SanitizeFilePath(req.code, req.chosen.FilePath)
		return stageStreamingCode, nil

	case stageStreamingCode:
		if err := req.send("", 0, ContentCode, StatusStart); err != nil {
			return stageDone, err
		}
		if err := req.send(fmt.Sprintf("```python\n%s\n```", req.code), 0, ContentCode, StatusInProgress); err != nil {
			return stageDone, err
		}
		if err := req.send("", 0, ContentCode, StatusEnd); err != nil {
			return stageDone, err
		}
		return stageExecuting, nil

	case stageExecuting:
		if err := req.send("⚡ Executing data analysis...", 0, ContentText, StatusInProgress); err != nil {
			return stageDone, err
		}
		output, err := o.runner.Run(ctx, req.code)
		if err != nil {
			return stageDone, fmt.Errorf("execution: %w", err)
		}
		req.output = output
		return stageStreamingData, nil

	case stageStreamingData:
		if err := req.send("", 0, ContentData, StatusStart); err != nil {
			return stageDone, err
		}
		if err := req.send(req.output, 0, ContentData, StatusInProgress); err != nil {
			return stageDone, err
		}
		if err := req.send("", 0, ContentData, StatusEnd); err != nil {
			return stageDone, err
		}
		return stageStreamingResult, nil

	case stageStreamingResult:
		if err := req.send("", 0, ContentResult, StatusStart); err != nil {
			return stageDone, err
		}
		if err := req.send(fmt.Sprintf("**Analysis Complete:**\n%s", req.output), 0, ContentResult, StatusInProgress); err != nil {
			return stageDone, err
		}
		if err := req.send("", 1, ContentResult, StatusEnd); err != nil {
			return stageDone, err
		}
		return stageDone, nil

	default:
		return stageDone, fmt.Errorf("invalid stage %d", st)
	}
}
