package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/decisions"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/state"
	"github.com/liquidmail/liquid-mail/internal/structured"
	"github.com/liquidmail/liquid-mail/internal/topics"
	"github.com/liquidmail/liquid-mail/internal/ui"
	"github.com/liquidmail/liquid-mail/internal/window"
)

// Metadata written on posted messages.
const metaWindowID = "lm.window_id"

// Where the topic of a post came from.
const (
	topicFromFlag     = "flag"
	topicFromPin      = "pinned"
	topicFromResolver = "resolved"
)

var postCmd = &cobra.Command{
	Use:     "post [message...]",
	GroupID: "messages",
	Short:   "Post a message to a topic",
	Long: `Post a message. The topic is, in order: --topic, the topic pinned to this
window, or the topic chosen by search-based voting (creating one if needed).
The topic is then pinned to the window.

Lines starting with "DECISION:" are indexed as decisions and checked against
prior decisions in the topic; a conflicting decision is refused unless --force.

The message is read from the arguments, or from stdin when piped.`,
	Example: `  liquid-mail post "Switching auth to JWT"
  echo "DECISION: use postgres" | liquid-mail post --topic storage-layer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		topicFlag, _ := cmd.Flags().GetString("topic")
		decisionFlag, _ := cmd.Flags().GetBool("decision")
		force, _ := cmd.Flags().GetBool("force")
		agent, _ := cmd.Flags().GetString("agent")
		title, _ := cmd.Flags().GetString("title")

		message, err := requireMessage(args)
		if err != nil {
			return err
		}

		cfg, client, err := setup()
		if err != nil {
			return err
		}
		chat, err := newChatter(cfg, client)
		if err != nil {
			return err
		}
		win := windowID()
		p := &poster{cfg: cfg, backend: client, chat: chat, store: openStore()}
		res, err := p.post(ctx, postRequest{
			Message:   message,
			TopicFlag: topicFlag,
			Window:    win,
			PeerID:    peerID(agent, win),
			TitleHint: title,
			Decision:  decisionFlag,
			Force:     force,
		})
		if err != nil {
			return err
		}
		return emit(res, func() { printPost(res) })
	},
}

func init() {
	postCmd.Flags().StringP("topic", "t", "", "Topic to post to (skips auto-detection)")
	postCmd.Flags().Bool("decision", false, "Treat the message as a decision")
	postCmd.Flags().Bool("force", false, "Post even if the decision conflicts with a prior one")
	postCmd.Flags().String("agent", "", "Peer id to post as (default: $LIQUID_MAIL_AGENT_ID, then the window name)")
	postCmd.Flags().String("title", "", "Title for a newly created topic (default: first line of the message)")
	rootCmd.AddCommand(postCmd)
}

// readMessage joins args, or reads stdin when there are no args and stdin
// is not a terminal.
func readMessage(args []string, in *os.File) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if in == nil || term.IsTerminal(int(in.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// requireMessage reads the message text and rejects an empty one.
func requireMessage(args []string) (string, error) {
	message, err := readMessage(args, os.Stdin)
	if err != nil {
		return "", err
	}
	if message == "" {
		return "", lmerr.InvalidInput("Missing message text (provide args or pipe stdin).").
			WithSuggestions(`Pass a message: liquid-mail post "Hello"`, `Or pipe stdin: echo "Hello" | liquid-mail post`)
	}
	return message, nil
}

// peerID picks the author of a post.
func peerID(explicit, win string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if env := strings.TrimSpace(os.Getenv("LIQUID_MAIL_AGENT_ID")); env != "" {
		return env
	}
	if win != "" {
		return window.NameFromID(win)
	}
	return "agent"
}

type postBackend interface {
	topics.ConsolidationBackend
	Search(ctx context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error)
}

type postRequest struct {
	Message   string
	TopicFlag string
	Window    string
	PeerID    string
	TitleHint string
	Decision  bool
	Force     bool
}

type postResult struct {
	TopicID     string                    `json:"topic_id"`
	TopicSource string                    `json:"topic_source"`
	MessageID   string                    `json:"message_id"`
	PeerID      string                    `json:"peer_id"`
	WindowID    string                    `json:"window_id,omitempty"`
	Pinned      bool                      `json:"pinned"`
	Resolution  *topics.Decision          `json:"resolution,omitempty"`
	Decision    decisions.Detection       `json:"decision"`
	Conflicts   *decisions.ConflictResult `json:"conflicts,omitempty"`
	Indexed     *decisions.IndexResult    `json:"indexed,omitempty"`
}

type poster struct {
	cfg     *config.Config
	backend postBackend
	chat    structured.Chatter
	store   *state.Store
}

func (p *poster) post(ctx context.Context, req postRequest) (*postResult, error) {
	res := &postResult{PeerID: req.PeerID, WindowID: req.Window}

	var err error
	res.TopicID, res.TopicSource, res.Resolution, err = p.chooseTopic(ctx, req)
	if err != nil {
		return nil, err
	}

	res.Decision = decisions.Detect(req.Message, decisions.DetectOptions{Flag: req.Decision})
	if res.Conflicts, err = p.checkConflicts(ctx, res.TopicID, req, res.Decision); err != nil {
		return nil, err
	}

	msg := honcho.MessageCreate{PeerID: req.PeerID, Content: req.Message}
	if req.Window != "" {
		msg.Metadata = honcho.Metadata{metaWindowID: req.Window}
	}
	created, err := p.backend.CreateMessage(ctx, res.TopicID, msg)
	if err != nil {
		return nil, err
	}
	res.MessageID = created.ID
	debug.LogEvent("post", res.TopicID, req.Window, created.ID)

	if req.Window != "" {
		if err := p.store.SetPinnedTopic(req.Window, res.TopicID); err != nil {
			WarnError("failed to pin topic %s: %v", res.TopicID, err)
		} else {
			res.Pinned = true
		}
	}

	if p.cfg.Decisions.Enabled && res.Decision.IsDecision {
		res.Indexed = p.index(ctx, res.TopicID, created.ID, req.Message, res.Decision)
	}
	return res, nil
}

// chooseTopic returns the canonical topic for the post and where it came
// from. The resolver runs only when no topic is given or pinned.
func (p *poster) chooseTopic(ctx context.Context, req postRequest) (string, string, *topics.Decision, error) {
	if name := strings.TrimSpace(req.TopicFlag); name != "" {
		topic := p.store.ResolveAlias(name)
		if !topics.LooksLikeGeneratedID(topic) {
			if err := topics.ValidateName(topic); err != nil {
				return "", "", nil, err
			}
		}
		return topic, topicFromFlag, nil, nil
	}
	if req.Window != "" {
		if pinned, ok := p.store.PinnedTopic(req.Window); ok {
			return p.store.ResolveAlias(pinned), topicFromPin, nil, nil
		}
	}

	systemPeer := p.cfg.Decisions.SystemPeerID
	var merger topics.Merger
	if p.cfg.Topics.ConsolidationStrategy == config.StrategyMerge {
		merger = topics.NewConsolidator(p.backend, p.chat, systemPeer, 0)
	}
	hint := req.TitleHint
	if hint == "" {
		hint = req.Message
	}
	d, err := topics.NewResolver(p.backend, merger, p.cfg.Topics, systemPeer).Resolve(ctx, req.Message, hint)
	if err != nil {
		return "", "", nil, err
	}

	switch o := d.Outcome.(type) {
	case topics.Assigned:
		return o.TopicID, topicFromResolver, d, nil
	case topics.Created:
		debug.LogEvent("topic_create", o.TopicID, req.Window, "")
		return o.TopicID, topicFromResolver, d, nil
	case topics.Merged:
		applyMerge(p.store, o.From, o.TopicID, req.Window)
		return o.TopicID, topicFromResolver, d, nil
	case topics.Blocked:
		return "", "", nil, lmerr.TopicCapacityExceeded(o.MaxActive, o.ActiveCount).WithDetail("resolution", d)
	case topics.RequiresTopic:
		return "", "", nil, lmerr.TopicRequired(o.Reason).WithDetail("resolution", d)
	case topics.Disabled:
		return "", "", nil, lmerr.TopicRequired(o.Reason).WithDetail("resolution", d)
	}
	return "", "", nil, fmt.Errorf("unhandled resolution %s", d.Outcome.Action())
}

// applyMerge points every window and alias at the merged topic. Failures
// are warnings: the merged topic already exists remotely.
func applyMerge(store *state.Store, from [2]string, to, win string) {
	for _, src := range from {
		if _, err := store.ReplacePinnedTopic(src, to); err != nil {
			WarnError("failed to repin windows from %s: %v", src, err)
		}
		if err := store.SetAlias(src, to); err != nil {
			WarnError("failed to alias %s to %s: %v", src, to, err)
		}
	}
	debug.LogEvent("topic_merge", to, win, strings.Join(from[:], ","))
}

func (p *poster) checkConflicts(ctx context.Context, topicID string, req postRequest, det decisions.Detection) (*decisions.ConflictResult, error) {
	c := p.cfg.Conflicts
	if !c.Enabled || req.Force || (c.DecisionsOnly && !det.IsDecision) {
		return nil, nil
	}
	proposed := strings.Join(det.Decisions, "\n")
	if proposed == "" {
		proposed = req.Message
	}
	checker := &decisions.Checker{
		Search:    p.backend,
		Chat:      p.chat,
		PeerID:    p.cfg.Decisions.SystemPeerID,
		Threshold: c.ConfidenceThreshold,
	}
	res, err := checker.Check(ctx, topicID, proposed)
	if err != nil {
		return nil, err
	}
	if res.Blocking {
		return nil, lmerr.DecisionConflict(topicID, res.MaxConfidence, res.Conflicts)
	}
	return res, nil
}

// index records the post's decisions. It never fails the post.
func (p *poster) index(ctx context.Context, topicID, messageID, message string, det decisions.Detection) *decisions.IndexResult {
	found := det.Decisions
	if len(found) == 0 {
		ex := &decisions.Extractor{Chat: p.chat, PeerID: p.cfg.Decisions.SystemPeerID}
		var err error
		if found, err = ex.Extract(ctx, message); err != nil {
			WarnError("decision extraction failed: %v", err)
			return nil
		}
	}
	ix := &decisions.Indexer{Backend: p.backend, SystemPeerID: p.cfg.Decisions.SystemPeerID}
	res, err := ix.Index(ctx, topicID, messageID, found)
	if err != nil {
		WarnError("decision indexing failed: %v", err)
		return nil
	}
	return res
}

func printPost(res *postResult) {
	printf("%s Posted to %s (%s)\n", ui.RenderPassIcon(), ui.RenderTopic(res.TopicID), res.TopicSource)
	if d := res.Resolution; d != nil {
		printf("  %s %s, dominance %.2f over %d matches\n",
			ui.RenderMuted("resolution:"), d.Outcome.Action(), d.Vote.Dominance, d.Vote.TotalMatches)
		if m, ok := d.Outcome.(topics.Merged); ok {
			printf("  %s %s + %s\n", ui.RenderWarn("merged:"), m.From[0], m.From[1])
		}
	}
	if res.Indexed != nil && len(res.Indexed.CreatedIDs) > 0 {
		printf("  %s %d decision(s) indexed\n", ui.RenderMuted("decisions:"), len(res.Indexed.CreatedIDs))
	}
	if res.Pinned {
		printf("  %s pinned to window %s\n", ui.RenderMuted("window:"), window.NameFromID(res.WindowID))
	}
}
