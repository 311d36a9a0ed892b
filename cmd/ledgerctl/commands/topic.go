package commands

import (
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/mirror"
	"github.com/spf13/cobra"
)

var (
	topicLimit uint64
	topicStart string
)

// NewTopicCmd returns the command that prints the messages of a topic.
func NewTopicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic <topic>",
		Short: "Subscribe to the messages of a topic",
		Args:  cobra.ExactArgs(1),
		RunE:  subscribeTopic,
	}
	cmd.Flags().Uint64Var(&topicLimit, "limit", 0, "Stop after this many messages, 0 to follow")
	cmd.Flags().StringVar(&topicStart, "start", "", "RFC3339 consensus time of the first message")
	return cmd
}

func subscribeTopic(cmd *cobra.Command, args []string) error {
	topicID, err := ledger.AccountIDFromString(args[0])
	if err != nil {
		return err
	}

	q := mirror.NewTopicMessageQuery().SetTopicID(topicID).SetLimit(topicLimit)

	if topicStart != "" {
		start, err := time.Parse(time.RFC3339Nano, topicStart)
		if err != nil {
			return err
		}
		q.SetStartTime(start)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	var subErr error

	out := cmd.OutOrStdout()
	h, err := q.Subscribe(ctx, c,
		func(m mirror.TopicMessage) {
			if err := printJSON(out, m); err != nil {
				c.Logger().WithError(err).Error("Printing message")
			}
		},
		func(err error) {
			subErr = err
		},
	)
	if err != nil {
		return err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Unsubscribe()
		<-h.Done()
	}

	return subErr
}
