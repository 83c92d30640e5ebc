package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Manage agent liveness heartbeats",
	Long: `Register agents and record heartbeats for liveness monitoring.

Agent hosts normally heartbeat by touching a file named after the agent ID
in the heartbeat spool directory (watched by 'specflow run'); these
commands are the direct path for hosts that prefer invoking the CLI.`,
}

var heartbeatRegisterCmd = &cobra.Command{
	Use:   "register <agent-id> <task-id>",
	Short: "Register an agent for liveness monitoring",
	Args:  cobra.ExactArgs(2),
	RunE:  runHeartbeatRegister,
}

var heartbeatBeatCmd = &cobra.Command{
	Use:   "beat <agent-id>",
	Short: "Record a heartbeat for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeatBeat,
}

var heartbeatStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show liveness assessments for all registered agents",
	RunE:  runHeartbeatStatus,
}

func init() {
	heartbeatCmd.AddCommand(heartbeatRegisterCmd)
	heartbeatCmd.AddCommand(heartbeatBeatCmd)
	heartbeatCmd.AddCommand(heartbeatStatusCmd)
}

func runHeartbeatRegister(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.Register(args[0], args[1], time.Now()); err != nil {
		return err
	}
	printOK("registered agent %s", args[0])
	return nil
}

func runHeartbeatBeat(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.RecordHeartbeat(args[0], time.Now()); err != nil {
		return err
	}
	return nil
}

func runHeartbeatStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	assessments, err := a.monitor.Sweep(time.Now())
	if err != nil {
		return err
	}
	if len(assessments) == 0 {
		fmt.Println("No registered agents.")
		return nil
	}

	for _, as := range assessments {
		verdict := "healthy"
		switch {
		case as.ShouldTerminate:
			verdict = "terminate"
		case as.Warning:
			verdict = fmt.Sprintf("warning, terminates in %s", as.WillTerminateIn.Round(time.Second))
		}
		fmt.Printf("%s  idle %.1fm  %s\n", idStyle.Render(as.AgentID), as.IdleMinutes, verdict)
	}
	return nil
}
