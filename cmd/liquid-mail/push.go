package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/push"
	"github.com/liquidmail/liquid-mail/internal/ui"
	"github.com/liquidmail/liquid-mail/internal/watch"
)

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "messages",
	Short:   "Run a local hook server that relays events",
	Long: `Listen for POST /hook requests and print each event. With --notify, raise a
desktop notification. With --topic, also post the event into that topic.

Requests must carry the x-liquid-mail-secret header when --secret (or
$LIQUID_MAIL_PUSH_SECRET) is set.`,
	Example: `  liquid-mail push --port 8787 --notify
  curl -X POST localhost:8787/hook -d '{"event":"ci","title":"build","body":"green"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bind, _ := cmd.Flags().GetString("bind")
		port, _ := cmd.Flags().GetInt("port")
		secret, _ := cmd.Flags().GetString("secret")
		desktop, _ := cmd.Flags().GetBool("notify")
		topicFlag, _ := cmd.Flags().GetString("topic")
		agent, _ := cmd.Flags().GetString("agent")
		if secret == "" {
			secret = os.Getenv("LIQUID_MAIL_PUSH_SECRET")
		}

		sc := push.ServerConfig{Secret: secret, Out: stdout, JSON: isJSON()}
		if desktop {
			sc.Notifier = watch.Desktop{}
		}
		if topicFlag = strings.TrimSpace(topicFlag); topicFlag != "" {
			_, client, err := setup()
			if err != nil {
				return err
			}
			sc.TopicID = openStore().ResolveAlias(topicFlag)
			sc.Poster = client
			sc.PeerID = strings.TrimSpace(agent)
		}

		addr := net.JoinHostPort(bind, fmt.Sprint(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		srv := push.NewServer(sc)
		if !sc.JSON {
			printf("%s Listening on http://%s (POST /hook)\n", ui.RenderPassIcon(), ln.Addr())
			if sc.TopicID != "" {
				printf("  forwarding to %s\n", ui.RenderTopic(sc.TopicID))
			}
		}
		return srv.Serve(cmd.Context(), ln)
	},
}

func init() {
	pushCmd.Flags().String("bind", "127.0.0.1", "Address to bind")
	pushCmd.Flags().IntP("port", "p", 8787, "Port to listen on")
	pushCmd.Flags().String("secret", "", "Shared secret required in x-liquid-mail-secret")
	pushCmd.Flags().Bool("notify", false, "Raise a desktop notification per event")
	pushCmd.Flags().StringP("topic", "t", "", "Also post each event into this topic")
	pushCmd.Flags().String("agent", "", "Peer id used when posting events (default: liquid-mail)")
	rootCmd.AddCommand(pushCmd)
}
