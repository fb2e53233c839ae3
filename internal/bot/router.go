package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khmerdict/dictbot/internal/assets"
	"github.com/khmerdict/dictbot/internal/inference"
	"github.com/khmerdict/dictbot/internal/logctx"
	"github.com/khmerdict/dictbot/internal/lookup"
	"github.com/khmerdict/dictbot/internal/stats"
	"github.com/khmerdict/dictbot/internal/user"
	"github.com/khmerdict/dictbot/internal/workerpool"
)

// Router answers decoded events. It is built once and shared by all webhook calls.
type Router struct {
	replier      Replier
	resolver     lookup.Resolver
	usage        UsageRecorder
	reporter     Reporter
	catalog      *assets.Catalog
	pool         *workerpool.Pool
	storeTimeout time.Duration
}

// RouterOptions holds the collaborators of a Router.
type RouterOptions struct {
	Replier      Replier
	Resolver     lookup.Resolver
	Usage        UsageRecorder
	Reporter     Reporter
	Catalog      *assets.Catalog
	Pool         *workerpool.Pool
	StoreTimeout time.Duration
}

// NewRouter creates a Router.
func NewRouter(opts RouterOptions) *Router {
	return &Router{
		replier:      opts.Replier,
		resolver:     opts.Resolver,
		usage:        opts.Usage,
		reporter:     opts.Reporter,
		catalog:      opts.Catalog,
		pool:         opts.Pool,
		storeTimeout: opts.StoreTimeout,
	}
}

// Handle answers one event. Messages are counted before they are answered;
// a failed count is logged and the answer still goes out.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	origin := ev.EventOrigin()
	ctx = logctx.With(ctx, "update_id", origin.UpdateID, "user_id", origin.User.ID)

	switch e := ev.(type) {
	case Command:
		r.recordUsage(ctx, e.User)
		return r.handleCommand(ctx, e)
	case FreeText:
		r.recordUsage(ctx, e.User)
		return r.handleText(ctx, e)
	case CallbackAction:
		return r.handleCallback(ctx, e)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

func (r *Router) recordUsage(ctx context.Context, u User) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	err := workerpool.Run(ctx, r.pool, func(ctx context.Context) error {
		return r.usage.Upsert(ctx, user.Profile{UserID: u.ID, FirstName: u.FirstName, Username: u.Username})
	})
	if err != nil {
		logctx.From(ctx).Error("failed to record usage", "error", err)
	}
}

func (r *Router) handleCommand(ctx context.Context, cmd Command) error {
	var reply Reply
	switch cmd.Name {
	case CommandStart:
		reply = r.startReply()
	case CommandHelp:
		reply = r.helpReply(false)
	case CommandAbout:
		reply = r.aboutReply(false)
	case CommandStats:
		reply = r.statsReply(ctx, cmd.User.ID)
	default:
		logctx.From(ctx).Debug("unknown command", "command", cmd.Raw)
		reply = r.helpReply(false)
	}
	_, err := r.replier.Send(ctx, cmd.ChatID, reply)
	return err
}

func (r *Router) handleText(ctx context.Context, msg FreeText) error {
	if answer, ok := r.catalog.CreatorAnswer(msg.Text); ok {
		_, err := r.replier.Send(ctx, msg.ChatID, Reply{Text: answer})
		return err
	}

	logger := logctx.From(ctx).With("word", msg.Text)
	searching, err := r.catalog.Render(assets.TemplateSearching, map[string]string{"Word": msg.Text})
	if err != nil {
		logger.Warn("failed to render placeholder", "error", err)
	}
	var placeholder *MessageRef
	if searching != "" {
		ref, err := r.replier.Send(ctx, msg.ChatID, Reply{Text: searching})
		if err != nil {
			logger.Warn("failed to send placeholder", "error", err)
		} else {
			placeholder = &ref
		}
	}

	reply := r.resultReply(ctx, msg.Text, r.resolver.Resolve(ctx, msg.Text))
	if placeholder != nil {
		err := r.replier.Edit(ctx, *placeholder, reply)
		if err == nil {
			return nil
		}
		logger.Warn("failed to edit placeholder, sending a new message", "error", err)
	}
	_, err = r.replier.Send(ctx, msg.ChatID, reply)
	return err
}

func (r *Router) handleCallback(ctx context.Context, cb CallbackAction) error {
	if err := r.replier.AnswerCallback(ctx, cb.CallbackID); err != nil {
		logctx.From(ctx).Warn("failed to answer callback", "error", err)
	}

	var reply Reply
	switch cb.Tag {
	case CallbackStart:
		reply = r.startReply()
	case CallbackHelp:
		reply = r.helpReply(true)
	case CallbackAbout:
		reply = r.aboutReply(true)
	default:
		return fmt.Errorf("unhandled callback %q", cb.Tag)
	}
	return r.replier.Edit(ctx, MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}, reply)
}

func (r *Router) contactButton() Button {
	return Button{Label: r.catalog.Buttons.Contact, URL: r.catalog.ContactURL}
}

func (r *Router) backButton() Button {
	return Button{Label: r.catalog.Buttons.Back, Callback: CallbackStart}
}

func (r *Router) startReply() Reply {
	return Reply{
		Text: r.catalog.Start,
		Buttons: [][]Button{
			{{Label: r.catalog.Buttons.Help, Callback: CallbackHelp}},
			{{Label: r.catalog.Buttons.About, Callback: CallbackAbout}},
			{r.contactButton()},
		},
	}
}

func (r *Router) helpReply(withBack bool) Reply {
	reply := Reply{Text: r.catalog.Help, Markdown: true}
	if withBack {
		reply.Buttons = [][]Button{{r.backButton()}}
	}
	return reply
}

func (r *Router) aboutReply(withBack bool) Reply {
	reply := Reply{
		Text:     r.catalog.About,
		Markdown: true,
		Buttons:  [][]Button{{r.contactButton()}},
	}
	if withBack {
		reply.Buttons = append(reply.Buttons, []Button{r.backButton()})
	}
	return reply
}

func (r *Router) statsReply(ctx context.Context, callerID int64) Reply {
	text, err := r.reporter.Report(ctx, callerID)
	switch {
	case errors.Is(err, stats.ErrPermissionDenied):
		logctx.From(ctx).Info("stats denied")
		return Reply{Text: r.catalog.Errors.PermissionDenied}
	case err != nil:
		logctx.From(ctx).Error("failed to build stats", "error", err)
		return Reply{Text: r.catalog.Errors.StoreUnavailable}
	}
	return Reply{Text: text, Markdown: true}
}

func (r *Router) resultReply(ctx context.Context, word string, result lookup.Result) Reply {
	var (
		text string
		err  error
	)
	switch res := result.(type) {
	case lookup.LocalHit:
		text, err = r.catalog.Render(assets.TemplateLocal, map[string]any{"Word": word, "Entries": res.Entries})
	case lookup.AIHit:
		text, err = r.catalog.Render(assets.TemplateAI, map[string]any{"Model": res.Model, "Text": res.Text})
	case lookup.Failure:
		return Reply{Text: r.failureText(res.Err)}
	default:
		err = fmt.Errorf("unhandled result %T", result)
	}
	if err != nil {
		logctx.From(ctx).Error("failed to render result", "error", err)
		return Reply{Text: r.catalog.Errors.StoreUnavailable}
	}
	return Reply{Text: text, Markdown: true}
}

func (r *Router) failureText(err error) string {
	switch {
	case errors.Is(err, lookup.ErrEmptyWord):
		return r.catalog.Errors.EmptyWord
	case errors.Is(err, inference.ErrDisabled):
		return r.catalog.Errors.AIDisabled
	case errors.Is(err, inference.ErrUnavailable):
		return r.catalog.Errors.AIUnavailable
	default:
		return r.catalog.Errors.StoreUnavailable
	}
}
