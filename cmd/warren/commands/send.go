package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warren-hq/warren/internal/config"
	"github.com/warren-hq/warren/internal/printer"
	"github.com/warren-hq/warren/internal/runtime"
	"github.com/warren-hq/warren/pkg/bothandler"
)

var (
	sendConfigPath string
	sendService    string
	sendKind       string
	sendTo         []string
	sendSubject    string
	sendContent    string
	sendSender     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish a synthetic incoming event to a bot",
	Long: `Send publishes a synthetic platform event to the instance's event
channel, as if a user had messaged the bot. Useful as an operator smoke
test against a running 'warren run'.`,
	Example: `  warren send --service echo --kind stream --to general --subject hi --content "hello bot"
  warren send --service echo --kind private --to echo-bot@example.com --content "ping"`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendConfigPath, "config", "c", "warren.yml", "Path to warren.yml")
	sendCmd.Flags().StringVar(&sendService, "service", "", "Target bot service name (required)")
	sendCmd.Flags().StringVar(&sendKind, "kind", "stream", "Message kind: stream or private")
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "Stream name or recipient addresses (required)")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "Stream message subject")
	sendCmd.Flags().StringVar(&sendContent, "content", "", "Message content (required)")
	sendCmd.Flags().StringVar(&sendSender, "sender", "operator@example.com", "Sender address recorded on the event")
	sendCmd.MarkFlagRequired("service")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("content")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(sendConfigPath)
	if err != nil {
		return printer.Error("Failed to load configuration", err.Error(), nil)
	}

	kind := bothandler.MessageKind(sendKind)
	if err := kind.Validate(); err != nil {
		return printer.Error("Invalid message kind", err.Error(), []string{
			"Pass --kind stream or --kind private",
		})
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return printer.Error("Invalid Redis URL", err.Error(), nil)
	}

	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	event := &runtime.Event{
		ID:      uuid.New().String(),
		Service: sendService,
		Message: bothandler.IncomingMessage{
			ID:          uuid.New().String(),
			Kind:        kind,
			SenderEmail: sendSender,
			Recipients:  sendTo,
			Subject:     sendSubject,
			Content:     sendContent,
		},
	}

	ctx := cmd.Context()
	if err := runtime.PublishEvent(ctx, rdb, cfg.Instance, event); err != nil {
		return printer.Error("Failed to publish event", err.Error(), []string{
			fmt.Sprintf("Check that Redis is reachable at %s", cfg.RedisURL),
		})
	}

	printer.Success("Published event %s to service %q on instance %q\n", event.ID, sendService, cfg.Instance)
	return nil
}
