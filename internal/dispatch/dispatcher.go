package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/tracing"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// Dispatcher routes blocking asks to the approval policy or the interactive
// responder and sends the resulting control message to the agent. The agent
// only ever blocks on one ask at a time; should more arrive (for example
// from replayed history) they are queued FIFO and resolved one by one, never
// interleaved.
type Dispatcher struct {
	sender    ControlSender
	policy    Policy
	responder Responder
	logger    *logger.Logger
	tracer    trace.Tracer

	mu               sync.Mutex
	busy             bool
	resolving        bool
	active           *agentstate.PendingAsk
	queue            []agentstate.PendingAsk
	errHandlers      []func(taskstream.TaskMessage, error)
	resolvedHandlers []func(taskstream.TaskMessage)
}

// NewDispatcher creates a dispatcher. The responder may be nil when every
// ask is expected to auto-resolve; a prompt needed with no responder is
// treated as a responder failure.
func NewDispatcher(sender ControlSender, policy Policy, responder Responder, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		policy:    policy,
		responder: responder,
		logger:    log.WithFields(zap.String("component", "ask-dispatcher")),
		tracer:    tracing.Tracer("ask-dispatcher"),
	}
}

// Attach subscribes the dispatcher to a state client's notifications.
func (d *Dispatcher) Attach(ctx context.Context, client *agentstate.Client) {
	client.OnWaitingForInput(func(p agentstate.PendingAsk) {
		d.HandleAsk(ctx, p)
	})
	client.OnTaskCompleted(func(m taskstream.TaskMessage) {
		d.HandleCompletion(m)
	})
}

// OnError registers a listener for responder failures. The failed ask stays
// unanswered until Answer or ClearTask.
func (d *Dispatcher) OnError(h func(taskstream.TaskMessage, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errHandlers = append(d.errHandlers, h)
}

// OnResolved registers a listener called after a control response has been
// sent for an ask. Non-blocking asks never fire it.
func (d *Dispatcher) OnResolved(h func(taskstream.TaskMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolvedHandlers = append(d.resolvedHandlers, h)
}

// HandleAsk resolves one blocking ask, or queues it when another is already
// being resolved.
func (d *Dispatcher) HandleAsk(ctx context.Context, p agentstate.PendingAsk) {
	d.mu.Lock()
	if d.busy {
		d.queue = append(d.queue, p)
		d.logger.Debug("queued ask behind pending one",
			zap.String("ask", string(p.Message.Ask)),
			zap.Int("queue_depth", len(d.queue)))
		d.mu.Unlock()
		return
	}
	d.busy = true
	d.mu.Unlock()

	d.drain(ctx, p)
}

// drain resolves p and then every queued ask in order. On a responder
// failure the failed ask stays active and draining stops; Answer or
// ClearTask unblocks it.
func (d *Dispatcher) drain(ctx context.Context, p agentstate.PendingAsk) {
	for {
		d.mu.Lock()
		d.active = &p
		d.resolving = true
		d.mu.Unlock()

		answered, err := d.resolve(ctx, p)

		d.mu.Lock()
		d.resolving = false
		d.mu.Unlock()

		if err != nil {
			d.logger.Error("responder failed, ask stays unanswered",
				zap.Error(err),
				zap.String("ask", string(p.Message.Ask)))
			d.notifyError(p.Message, err)
			return
		}
		if answered {
			d.notifyResolved(p.Message)
		}

		d.mu.Lock()
		d.active = nil
		if len(d.queue) == 0 {
			d.busy = false
			d.mu.Unlock()
			return
		}
		p = d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
	}
}

func (d *Dispatcher) resolve(ctx context.Context, p agentstate.PendingAsk) (answered bool, retErr error) {
	msg := p.Message
	ctx, span := d.tracer.Start(ctx, "dispatch.resolve", trace.WithAttributes(
		attribute.String("ask", string(msg.Ask)),
		attribute.String("state", string(p.State)),
	))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	category, err := taskstream.CategoryOf(msg.Ask)
	if err != nil {
		return false, err
	}

	switch category {
	case taskstream.CategoryIdle:
		// Terminal idle asks never reach the dispatcher; what arrives here
		// is the retryable remainder (api_req_failed and the limit asks).
		if d.policy.NonInteractive() {
			d.logger.Info("auto-proceeding on idle ask", zap.String("ask", string(msg.Ask)))
			d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseYes, ""))
			return true, nil
		}
		dec, err := d.promptApproval(ctx, msg)
		if err != nil {
			return false, err
		}
		d.sendDecision(dec)
		return true, nil

	case taskstream.CategoryInteractive:
		if msg.Ask == taskstream.AskFollowup {
			text, err := d.promptFollowup(ctx, msg)
			if err != nil {
				return false, err
			}
			d.sender.SendControl(taskstream.NewMessageResponse(text))
			return true, nil
		}
		if d.policy.AutoApproves(msg.Ask) {
			d.logger.Info("auto-approving ask", zap.String("ask", string(msg.Ask)))
			d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseYes, ""))
			return true, nil
		}
		dec, err := d.promptApproval(ctx, msg)
		if err != nil {
			return false, err
		}
		d.sendDecision(dec)
		return true, nil

	case taskstream.CategoryResumable:
		if d.policy.NonInteractive() {
			d.logger.Info("auto-resuming task")
			d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseYes, ""))
			return true, nil
		}
		resume, err := d.promptResume(ctx, msg)
		if err != nil {
			return false, err
		}
		if resume {
			d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseYes, ""))
		} else {
			d.sender.SendControl(taskstream.ControlMessage{Type: taskstream.ControlClearTask})
		}
		return true, nil

	default:
		// Non-blocking asks pass through without a response.
		return false, nil
	}
}

func (d *Dispatcher) promptApproval(ctx context.Context, msg taskstream.TaskMessage) (Decision, error) {
	if d.responder == nil {
		return Decision{}, fmt.Errorf("ask %q needs a decision but no responder is configured", msg.Ask)
	}
	return d.responder.PromptApproval(ctx, msg)
}

func (d *Dispatcher) promptFollowup(ctx context.Context, msg taskstream.TaskMessage) (string, error) {
	if d.responder == nil {
		return "", fmt.Errorf("followup ask needs an answer but no responder is configured")
	}
	return d.responder.PromptFollowup(ctx, msg)
}

func (d *Dispatcher) promptResume(ctx context.Context, msg taskstream.TaskMessage) (bool, error) {
	if d.responder == nil {
		return false, fmt.Errorf("resume ask needs a decision but no responder is configured")
	}
	return d.responder.PromptResume(ctx, msg)
}

func (d *Dispatcher) sendDecision(dec Decision) {
	if dec.Approved {
		d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseYes, dec.Text))
	} else {
		d.sender.SendControl(taskstream.NewAskResponse(taskstream.AskResponseNo, dec.Text))
	}
}

// Answer resolves the currently active ask with an external decision, used
// after a responder failure left it unanswered. Queued asks resume draining.
// While a responder prompt is still in flight the ask is not answerable;
// the prompt's return will resolve it.
func (d *Dispatcher) Answer(ctx context.Context, dec Decision) error {
	d.mu.Lock()
	if d.resolving {
		d.mu.Unlock()
		return fmt.Errorf("ask is being resolved by the responder")
	}
	if d.active == nil {
		d.mu.Unlock()
		return fmt.Errorf("no pending ask to answer")
	}
	active := *d.active
	d.active = nil
	d.mu.Unlock()

	switch {
	case active.Message.Ask == taskstream.AskFollowup:
		d.sender.SendControl(taskstream.NewMessageResponse(dec.Text))
	case active.State == agentstate.StateResumable && !dec.Approved:
		d.sender.SendControl(taskstream.ControlMessage{Type: taskstream.ControlClearTask})
	default:
		d.sendDecision(dec)
	}
	d.notifyResolved(active.Message)

	d.mu.Lock()
	if len(d.queue) == 0 {
		d.busy = false
		d.mu.Unlock()
		return nil
	}
	next := d.queue[0]
	d.queue = d.queue[1:]
	d.mu.Unlock()

	d.drain(ctx, next)
	return nil
}

// HandleCompletion marks the task finished and discards any pending asks.
func (d *Dispatcher) HandleCompletion(msg taskstream.TaskMessage) {
	d.mu.Lock()
	dropped := len(d.queue)
	d.active = nil
	d.queue = nil
	d.busy = false
	d.mu.Unlock()

	d.logger.Info("task completed",
		zap.String("ask", string(msg.Ask)),
		zap.Int("dropped_asks", dropped))
}

// Pending returns the ask currently awaiting a decision, if any.
func (d *Dispatcher) Pending() (agentstate.PendingAsk, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return agentstate.PendingAsk{}, false
	}
	return *d.active, true
}

// QueueLen returns the number of asks waiting behind the active one.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// NewTask starts a new task with the given prompt.
func (d *Dispatcher) NewTask(text string) {
	d.sender.SendControl(taskstream.NewTaskControl(text))
}

// CancelTask interrupts the running task without clearing its log.
func (d *Dispatcher) CancelTask() {
	d.sender.SendControl(taskstream.ControlMessage{Type: taskstream.ControlCancelTask})
}

// ClearTask discards the current task and any pending asks.
func (d *Dispatcher) ClearTask() {
	d.mu.Lock()
	d.active = nil
	d.queue = nil
	d.busy = false
	d.mu.Unlock()
	d.sender.SendControl(taskstream.ControlMessage{Type: taskstream.ControlClearTask})
}

// TerminalContinue lets a running command keep going.
func (d *Dispatcher) TerminalContinue() {
	d.sender.SendControl(taskstream.NewTerminalOperation(taskstream.TerminalContinue))
}

// TerminalAbort kills the running command.
func (d *Dispatcher) TerminalAbort() {
	d.sender.SendControl(taskstream.NewTerminalOperation(taskstream.TerminalAbort))
}

// UpdateSettings pushes updated agent settings.
func (d *Dispatcher) UpdateSettings(settings any) {
	d.sender.SendControl(taskstream.ControlMessage{Type: taskstream.ControlUpdateSettings, Settings: settings})
}

func (d *Dispatcher) notifyError(msg taskstream.TaskMessage, err error) {
	d.mu.Lock()
	handlers := append([]func(taskstream.TaskMessage, error){}, d.errHandlers...)
	d.mu.Unlock()
	for _, h := range handlers {
		h(msg, err)
	}
}

func (d *Dispatcher) notifyResolved(msg taskstream.TaskMessage) {
	d.mu.Lock()
	handlers := append([]func(taskstream.TaskMessage){}, d.resolvedHandlers...)
	d.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}
