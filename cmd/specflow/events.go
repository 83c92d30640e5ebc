package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

var (
	eventsType    string
	eventsSession string
	eventsLimit   int

	publishFrom    string
	publishTo      string
	publishType    string
	publishMessage string
	publishPayload string

	ackResponse string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with the coordination event log",
}

var eventsListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List coordination events, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsList,
}

var eventsPublishCmd = &cobra.Command{
	Use:   "publish <task-id>",
	Short: "Publish a coordination event",
	Long: `Append a coordination event to a spec task's durable log and notify
subscribers. Omitting --to makes it a broadcast visible to every session
on the task.`,
	Args: cobra.ExactArgs(1),
	RunE: runEventsPublish,
}

var eventsAckCmd = &cobra.Command{
	Use:   "ack <event-id>",
	Short: "Acknowledge a coordination event",
	Long: `Mark an event acknowledged, optionally with a response. An event can
be acknowledged once; later attempts fail without overwriting the first
response.`,
	Args: cobra.ExactArgs(1),
	RunE: runEventsAck,
}

func init() {
	eventsListCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type")
	eventsListCmd.Flags().StringVar(&eventsSession, "session", "", "Filter to events sent by or addressed to a session")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 0, "Maximum events to return")

	eventsPublishCmd.Flags().StringVar(&publishFrom, "from", "", "Sending session ID (required)")
	eventsPublishCmd.Flags().StringVar(&publishTo, "to", "", "Receiving session ID (empty for broadcast)")
	eventsPublishCmd.Flags().StringVar(&publishType, "type", string(models.CoordinationEventNotification), "Event type")
	eventsPublishCmd.Flags().StringVar(&publishMessage, "message", "", "Human-readable message")
	eventsPublishCmd.Flags().StringVar(&publishPayload, "payload", "", "JSON payload")
	eventsPublishCmd.MarkFlagRequired("from")

	eventsAckCmd.Flags().StringVar(&ackResponse, "response", "", "Response recorded with the acknowledgement")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsPublishCmd)
	eventsCmd.AddCommand(eventsAckCmd)
}

func runEventsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.bus.Query(args[0], state.EventFilters{
		Type:      models.CoordinationEventType(eventsType),
		SessionID: eventsSession,
		Limit:     eventsLimit,
	})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No coordination events.")
		return nil
	}

	for _, e := range events {
		to := e.ToSessionID
		if to == "" {
			to = "broadcast"
		}
		acked := ""
		if e.Acknowledged {
			acked = " ✓"
		}
		fmt.Printf("%s  %s  %s -> %s%s\n",
			dimStyle.Render(e.Timestamp.Format("15:04:05.000")),
			e.Type, idStyle.Render(e.FromSessionID), idStyle.Render(to), acked)
		if e.Message != "" {
			fmt.Printf("    %s\n", e.Message)
		}
	}
	return nil
}

func runEventsPublish(cmd *cobra.Command, args []string) error {
	var payload map[string]interface{}
	if publishPayload != "" {
		if err := json.Unmarshal([]byte(publishPayload), &payload); err != nil {
			return fmt.Errorf("parse payload: %w", err)
		}
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	e := &models.CoordinationEvent{
		SpecTaskID:    args[0],
		FromSessionID: publishFrom,
		ToSessionID:   publishTo,
		Type:          models.CoordinationEventType(publishType),
		Message:       publishMessage,
		Payload:       payload,
	}
	if err := a.bus.Publish(e); err != nil {
		return err
	}
	printOK("published %s", e.ID)
	return nil
}

func runEventsAck(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bus.Acknowledge(args[0], ackResponse); err != nil {
		return err
	}
	printOK("acknowledged %s", args[0])
	return nil
}
