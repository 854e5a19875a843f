package evaluator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/board"
)

// Config configures the underlying UCI engine process.
type Config struct {
	BinaryPath string
	Threads    int
	Hash       int // MB
	Depth      int
}

// SerialEvaluator drives a single UCI engine subprocess, serializing
// every call through a mutex. A failed call tears the process down and
// re-launches it lazily on the next call, rather than attempting
// mid-session recovery.
type SerialEvaluator struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	ready  bool
}

// NewSerialEvaluator builds an evaluator that lazily starts its
// subprocess on first use.
func NewSerialEvaluator(cfg Config, logger *zap.Logger) *SerialEvaluator {
	return &SerialEvaluator{cfg: cfg, logger: logger}
}

// Available reports whether the subprocess is initialized, starting it
// first if it is not yet running. A failed start reports false.
func (e *SerialEvaluator) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureStarted() == nil
}

func (e *SerialEvaluator) ensureStarted() error {
	if e.ready {
		return nil
	}

	cmd := exec.Command(e.cfg.BinaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("start engine: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewScanner(stdout)

	if err := e.handshake(); err != nil {
		e.teardown()
		return fmt.Errorf("engine handshake: %w", err)
	}

	e.ready = true
	return nil
}

func (e *SerialEvaluator) handshake() error {
	if err := e.send("uci"); err != nil {
		return err
	}
	for e.stdout.Scan() {
		if e.stdout.Text() == "uciok" {
			break
		}
	}
	if err := e.stdout.Err(); err != nil {
		return err
	}

	if err := e.send(fmt.Sprintf("setoption name Threads value %d", e.cfg.Threads)); err != nil {
		return err
	}
	if err := e.send(fmt.Sprintf("setoption name Hash value %d", e.cfg.Hash)); err != nil {
		return err
	}
	if err := e.send("isready"); err != nil {
		return err
	}
	for e.stdout.Scan() {
		if e.stdout.Text() == "readyok" {
			break
		}
	}
	return e.stdout.Err()
}

func (e *SerialEvaluator) send(cmd string) error {
	_, err := e.stdin.Write([]byte(cmd + "\n"))
	if err != nil {
		return fmt.Errorf("send command %q: %w", cmd, err)
	}
	return nil
}

func (e *SerialEvaluator) teardown() {
	if e.stdin != nil {
		e.stdin.Write([]byte("quit\n"))
		e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		e.cmd.Process.Kill()
		e.cmd.Wait()
	}
	e.cmd, e.stdin, e.stdout, e.ready = nil, nil, nil, false
}

// EvaluateMoves scores every candidate UCI move by pushing it onto fen
// and asking the engine to evaluate the resulting position, negating
// the score back to the original mover's perspective (the engine
// reports from the side to move after the push, i.e. the opponent).
func (e *SerialEvaluator) EvaluateMoves(ctx context.Context, fen string, ucis []string) ([]CandidateEval, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureStarted(); err != nil {
		return nil, apperr.ServiceUnavailable("tactical evaluator unavailable", err)
	}

	evals := make([]CandidateEval, 0, len(ucis))
	for _, uci := range ucis {
		cp, err := e.evaluateOne(fen, uci)
		if err != nil {
			e.teardown()
			return nil, apperr.ServiceUnavailable("tactical evaluator failed mid-batch", err)
		}
		evals = append(evals, CandidateEval{UCI: uci, CPScore: cp})
	}

	deriveLosses(evals)
	return evals, nil
}

func (e *SerialEvaluator) evaluateOne(fen, uci string) (int, error) {
	b, err := board.FromFEN(fen)
	if err != nil {
		return 0, err
	}
	san, err := b.ParseUCI(uci)
	if err != nil {
		return 0, apperr.Internal("illegal uci move for position", err)
	}
	if err := b.Push(san); err != nil {
		return 0, err
	}

	if isOver, isCheckmate := b.Outcome(); isOver {
		if isCheckmate {
			// The mover who just moved delivered mate; from the original
			// mover's perspective this is maximally good.
			return MateCPBase, nil
		}
		return 0, nil
	}

	if err := e.send(fmt.Sprintf("position fen %s", b.FEN())); err != nil {
		return 0, err
	}
	if err := e.send(fmt.Sprintf("go depth %d", e.cfg.Depth)); err != nil {
		return 0, err
	}

	cp, err := e.readScore()
	if err != nil {
		return 0, err
	}
	// The engine's score is from the perspective of the side to move in
	// the position after our push, i.e. the opponent. Negate to recover
	// the original mover's perspective.
	return -cp, nil
}

func (e *SerialEvaluator) readScore() (int, error) {
	var lastCP int
	var lastMateIn *int

	for e.stdout.Scan() {
		line := e.stdout.Text()
		if strings.HasPrefix(line, "info") && strings.Contains(line, "score") {
			cp, mateIn := parseScore(line)
			if mateIn != nil {
				lastMateIn = mateIn
			} else {
				lastCP = cp
				lastMateIn = nil
			}
		}
		if strings.HasPrefix(line, "bestmove") {
			break
		}
	}
	if err := e.stdout.Err(); err != nil {
		return 0, err
	}

	if lastMateIn != nil {
		return MateToCP(*lastMateIn), nil
	}
	return lastCP, nil
}

func parseScore(line string) (cp int, mateIn *int) {
	parts := strings.Fields(line)
	for i := 0; i < len(parts); i++ {
		if parts[i] != "score" || i+2 >= len(parts) {
			continue
		}
		switch parts[i+1] {
		case "cp":
			v, _ := strconv.Atoi(parts[i+2])
			return v, nil
		case "mate":
			v, _ := strconv.Atoi(parts[i+2])
			return 0, &v
		}
	}
	return 0, nil
}

// Close shuts the subprocess down.
func (e *SerialEvaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardown()
}
