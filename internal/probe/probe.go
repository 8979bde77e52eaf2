// Package probe invokes the external gpu-query device probe and parses its
// CSV output into scheduler.GPU rows, grounded on gpu-scheduler.py's
// _update_gpu_info and the original daemon's nvidia-smi invocation.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/metrics"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

const expectedFields = 8

// Poller runs the gpu-query probe on demand. It holds no scheduler lock: the
// Control Loop invokes Poll outside the central mutex (spec.md §5 discipline
// (a)), then hands the parsed rows to scheduler.Engine.ReconcileGPUs under a
// short lock.
type Poller struct {
	binary  string
	timeout time.Duration
	logger  *logrus.Logger
}

func NewPoller(binary string, timeout time.Duration, logger *logrus.Logger) *Poller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Poller{binary: binary, timeout: timeout, logger: logger}
}

// Poll runs the probe and parses its stdout. On any failure (missing
// binary, non-zero exit, no usable rows) it returns (nil, err), logging the
// probe's stderr when the command itself failed; the
// caller retains the prior GPU snapshot rather than treating this as fatal,
// per spec.md §4.A.
func (p *Poller) Poll(ctx context.Context) ([]scheduler.GPU, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if p.logger != nil {
			p.logger.WithError(err).WithField("stderr", stderr.String()).Warn("gpu-query probe failed")
		}
		metrics.PollFailures.Inc()
		return nil, fmt.Errorf("run gpu-query: %w", err)
	}

	rows := ParseCSV(stdout.String())
	if len(rows) == 0 {
		metrics.PollFailures.Inc()
		return nil, fmt.Errorf("gpu-query returned no usable rows")
	}
	return rows, nil
}

// ParseCSV parses gpu-query's stdout contract: one CSV row per GPU, eight
// fields, no header, no units. Rows with fewer than eight fields are
// skipped. Unparseable numeric fields cause the row to be skipped rather
// than aborting the whole poll. Rows are returned sorted by ascending GPU
// id, matching the original daemon's iteration order.
func ParseCSV(output string) []scheduler.GPU {
	var rows []scheduler.GPU

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < expectedFields {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		id, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		totalMem, err := parseFloatField(parts[2])
		if err != nil {
			continue
		}
		usedMem, err := parseFloatField(parts[3])
		if err != nil {
			continue
		}
		util, err := parseFloatField(parts[4])
		if err != nil {
			continue
		}
		temp, err := parseFloatField(parts[5])
		if err != nil {
			continue
		}
		power, err := parseFloatField(parts[6])
		if err != nil {
			continue
		}
		powerLimit, err := parseFloatField(parts[7])
		if err != nil {
			continue
		}

		rows = append(rows, scheduler.GPU{
			ID:             id,
			Name:           parts[1],
			TotalMemoryMB:  int(totalMem),
			UsedMemoryMB:   int(usedMem),
			UtilizationPct: int(util),
			TemperatureC:   int(temp),
			PowerDrawW:     power,
			PowerLimitW:    powerLimit,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// parseFloatField strips a trailing unit token (e.g. "40000 MiB", "45 W")
// before parsing, since gpu-query's contract promises unit-free numbers but
// some probe implementations in the wild still emit them.
func parseFloatField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.ParseFloat(fields[0], 64)
}
