package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/log"
)

// Claude runs prompts through the Claude CLI in non-interactive
// streaming mode.
type Claude struct {
	command string
	model   string
	timeout time.Duration
}

// NewClaude creates a CLI-backed engine. An empty command defaults to
// "claude"; a zero timeout defaults to ten minutes.
func NewClaude(command, model string, timeout time.Duration) *Claude {
	if command == "" {
		command = "claude"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Claude{command: command, model: model, timeout: timeout}
}

// Available checks that the CLI binary is installed and runs.
func (c *Claude) Available() error {
	path, err := exec.LookPath(c.command)
	if err != nil {
		return errdefs.Config("engine CLI %q not found in PATH", c.command)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, path, "--version").Run(); err != nil {
		return errdefs.Config("engine CLI %q not working: %v", c.command, err)
	}
	return nil
}

// Execute runs one prompt and aggregates the stream into a Result.
func (c *Claude) Execute(ctx context.Context, req Request) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args, err := c.buildArgs(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(runCtx, c.command, args...)
	cmd.Env = os.Environ()
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errdefs.Agent("stdout pipe", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errdefs.Agent("start engine process", err)
	}

	res := &Result{SessionID: req.SessionID}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // large tool results arrive on one line

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, ok := parseMessage(line)
		if !ok {
			continue
		}
		res.Messages = append(res.Messages, msg)
		if req.OnMessage != nil {
			req.OnMessage(msg)
		}

		switch msg.Type {
		case "system":
			// The init message carries the authoritative session id.
			if msg.Subtype == "init" && msg.SessionID != "" {
				res.SessionID = msg.SessionID
			}
		case "result":
			if msg.SessionID != "" {
				res.SessionID = msg.SessionID
			}
			res.Text = msg.Text
			if msg.IsError {
				_ = cmd.Wait()
				return nil, errdefs.Agent(fmt.Sprintf("engine reported %s", msg.Subtype), errors.New(msg.Text))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, errdefs.Agent("read engine stream", err)
	}

	if err := cmd.Wait(); err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return nil, errdefs.Timeout(fmt.Sprintf("engine run exceeded %s", c.timeout), runCtx.Err())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errdefs.Agent("engine process failed", errors.New(detail))
	}

	if res.SessionID == "" {
		// No init message was observed; mint an id so chaining still works.
		res.SessionID = uuid.NewString()
		log.Debug("engine stream carried no session id, generated one", "session", res.SessionID)
	}

	return res, nil
}

func (c *Claude) buildArgs(req Request) ([]string, error) {
	args := []string{"--print", "--verbose", "--output-format", "stream-json"}

	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
		if req.ForkSession {
			args = append(args, "--fork-session")
		}
	}
	if len(req.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(req.DisallowedTools, ","))
	}
	if len(req.Servers) > 0 {
		cfg, err := json.Marshal(map[string]any{"mcpServers": req.Servers})
		if err != nil {
			return nil, errdefs.Agent("encode gateway config", err)
		}
		args = append(args, "--mcp-config", string(cfg))
	}

	args = append(args, req.Prompt)
	return args, nil
}

var _ Engine = (*Claude)(nil)
