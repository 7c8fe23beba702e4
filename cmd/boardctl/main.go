package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/agentboard/boardfile/internal/board"
)

func main() {
	rootFlag := flag.String("root", ".", "workspace root containing the board state file")
	addrFlag := flag.String("addr", "http://127.0.0.1:8383", "daemon address for the refresh command")
	tokenFlag := flag.String("token", "", "bearer token for the refresh command")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	command := args[0]
	ctx := context.Background()

	var err error
	switch command {
	case "show":
		err = runShow(ctx, *rootFlag)
	case "process":
		err = runProcess(ctx, *rootFlag)
	case "seed":
		err = runSeed(ctx, *rootFlag)
	case "open":
		err = runOpen(ctx, *rootFlag)
	case "validate":
		err = runValidate(ctx, *rootFlag)
	case "refresh":
		err = runRefresh(*addrFlag, *tokenFlag)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: boardctl [-root dir] <show|process|seed|open|validate|refresh>")
}

func newController(root string) (*board.Controller, error) {
	controller := board.NewController(board.ControllerOptions{
		Logger: log.Default(),
		Opener: openInEditor,
	})
	if err := controller.BindRoot(root); err != nil {
		return nil, err
	}
	return controller, nil
}

func runShow(ctx context.Context, root string) error {
	controller, err := newController(root)
	if err != nil {
		return err
	}
	defer controller.Close()

	doc, err := controller.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("revision %d, updated %s\n\n", doc.Revision, doc.UpdatedAt)
	for _, lane := range []board.Lane{board.LaneTodo, board.LaneProgress, board.LaneDone} {
		fmt.Printf("%s:\n", lane)
		for _, task := range doc.Tasks {
			if task.Lane != lane {
				continue
			}
			marker := " "
			if task.Status == board.StatusBlocked {
				marker = "!"
			}
			fmt.Printf("  %s [%s] %-40s %s/%s %s\n", marker, task.ID, task.Title, task.Owner, task.Priority, task.Effort)
		}
		fmt.Println()
	}
	stats := board.MilestoneProgress(doc)
	if len(stats) > 0 {
		fmt.Println("milestones:")
		for _, stat := range stats {
			fmt.Printf("  %-10s %d/%d done (%d%%)\n", stat.Milestone, stat.Done, stat.Total, stat.Percent)
		}
	}
	pending := board.PendingHumanMessages(doc)
	if len(pending) > 0 {
		fmt.Printf("\n%d unresolved message(s) from human; run boardctl process\n", len(pending))
	}
	return nil
}

func runProcess(ctx context.Context, root string) error {
	controller, err := newController(root)
	if err != nil {
		return err
	}
	defer controller.Close()

	prompter := &terminalPrompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
	result, err := controller.ProcessMessages(ctx, prompter)
	switch {
	case errors.Is(err, board.ErrNonePending):
		fmt.Println("no unresolved messages from human")
		return nil
	case errors.Is(err, board.ErrCancelled):
		fmt.Println("cancelled; board unchanged")
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("resolved %q, reply recorded as %s\n", result.Resolved.Title, result.Reply.ID)
	return nil
}

func runSeed(ctx context.Context, root string) error {
	controller, err := newController(root)
	if err != nil {
		return err
	}
	defer controller.Close()

	fmt.Print("seeding replaces the entire board; continue? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("aborted")
		return nil
	}
	doc, err := controller.Seed(ctx, true)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d tasks at revision %d\n", len(doc.Tasks), doc.Revision)
	return nil
}

func runOpen(ctx context.Context, root string) error {
	controller, err := newController(root)
	if err != nil {
		return err
	}
	defer controller.Close()

	location, err := controller.OpenStateFile(ctx)
	if err != nil {
		return err
	}
	fmt.Println(location)
	return nil
}

func runValidate(ctx context.Context, root string) error {
	controller, err := newController(root)
	if err != nil {
		return err
	}
	defer controller.Close()

	findings, err := controller.Validate(ctx)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Println("document matches the schema")
		return nil
	}
	for _, finding := range findings {
		fmt.Println(finding)
	}
	return fmt.Errorf("%d finding(s)", len(findings))
}

func runRefresh(addr, token string) error {
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(addr, "/")+"/v1/board/refresh", nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println("refresh pushed to connected views")
	return nil
}

func openInEditor(location string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return fmt.Errorf("EDITOR is not set")
	}
	cmd := exec.Command(editor, location)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// terminalPrompter walks the operator through candidate selection and reply
// entry on stdin. An empty line at either step cancels.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *terminalPrompter) SelectMessage(ctx context.Context, candidates []board.Message) (board.Message, bool, error) {
	sorted := append([]board.Message(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })

	fmt.Fprintf(p.out, "%d unresolved message(s) from human:\n", len(sorted))
	for i, msg := range sorted {
		fmt.Fprintf(p.out, "  %d) [%s] %s\n     %s\n", i+1, msg.ID, msg.Title, msg.Body)
	}
	fmt.Fprint(p.out, "select a message (enter to cancel): ")
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return board.Message{}, false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return board.Message{}, false, nil
	}
	index, err := strconv.Atoi(line)
	if err != nil || index < 1 || index > len(sorted) {
		return board.Message{}, false, fmt.Errorf("invalid selection %q", line)
	}
	return sorted[index-1], true, nil
}

func (p *terminalPrompter) PromptReply(ctx context.Context, selected board.Message) (string, bool, error) {
	fmt.Fprintf(p.out, "reply to %q (enter to cancel): ", selected.Title)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, nil
	}
	return line, true, nil
}
