/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/task"
)

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !errors.Is(err, fs.ErrNotExist)
}

// taskCmd groups the task subcommands
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, list and move tasks through their lifecycle",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tasks visible to you",
	Long: `Taskbroker task list command.

Filters are key=value pairs, for example --filter state=P or
--filter exclude_gender=F. Repeat --filter to combine them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("filter")
		filters, err := parseFilters(raw)
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		tasks, err := c.ListTasks(cmd.Context(), filters)
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), tasks, time.Now().UTC())
		return nil
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new task",
	Long: `Taskbroker task create command.

The create command posts a task read from a JSON file on behalf of your
charity.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("filename")
		fullFilePath, err := filepath.Abs(filename)
		if err != nil {
			return err
		}
		if !fileExists(filename) {
			return fmt.Errorf("file %s does not exist", filename)
		}
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("cannot read file %s: %w", filename, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("file %s is not valid JSON", fullFilePath)
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.CreateTask(cmd.Context(), data)
		if err != nil {
			return err
		}
		log.Printf("Using file: %v", fullFilePath)
		fmt.Fprintln(cmd.OutOrStdout(), t.ID)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK_ID",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.GetTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var taskRequestCmd = &cobra.Command{
	Use:   "request TASK_ID",
	Short: "Ask to take on a pending task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		detail, err := c.RequestTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), detail)
		return nil
	},
}

var taskRespondCmd = &cobra.Command{
	Use:   "respond TASK_ID A|R",
	Short: "Accept or reject the benefactor waiting on a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		detail, err := c.RespondTask(cmd.Context(), id, strings.ToUpper(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), detail)
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done TASK_ID",
	Short: "Mark an assigned task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		detail, err := c.CompleteTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), detail)
		return nil
	},
}

var taskHistoryCmd = &cobra.Command{
	Use:   "history TASK_ID",
	Short: "Show the state changes of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		events, err := c.TaskHistory(cmd.Context(), id)
		if err != nil {
			return err
		}
		printEvents(cmd.OutOrStdout(), events, time.Now().UTC())
		return nil
	},
}

func parseTaskID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return id, nil
}

// parseFilters turns key=value pairs into query parameters. Unknown keys
// are passed through and ignored by the server.
func parseFilters(raw []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		values.Set(key, value)
	}
	return values, nil
}

func ago(now, then time.Time) string {
	if then.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s ago", units.HumanDuration(now.Sub(then)))
}

func shortID(id uuid.UUID) string {
	if id == uuid.Nil {
		return "-"
	}
	return id.String()
}

func printTasks(out io.Writer, tasks []task.Task, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 5, ' ', tabwriter.TabIndent)
	fmt.Fprintln(w, "ID\tTITLE\tSTATE\tCHARITY\tBENEFACTOR\tCREATED\t")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", t.ID, t.Title, t.State, shortID(t.CharityID), shortID(t.AssignedBenefactor), ago(now, t.CreatedAt))
	}
	w.Flush()
}

func printEvents(out io.Writer, events []task.Event, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 5, ' ', tabwriter.TabIndent)
	fmt.Fprintln(w, "ACTION\tFROM\tTO\tACTOR\tWHEN\t")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", e.Action, e.From, e.To, shortID(e.ActorID), ago(now, e.Timestamp))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskCreateCmd, taskShowCmd, taskRequestCmd, taskRespondCmd, taskDoneCmd, taskHistoryCmd)
	taskListCmd.Flags().StringArray("filter", nil, "Filter as key=value, may be repeated")
	taskCreateCmd.Flags().StringP("filename", "f", "task.json", "Task specification file")
}
