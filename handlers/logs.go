package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const (
	defaultLogLines = 500
	maxLogLines     = 5000
)

// LogsHandler exposes the tail of the backend log file.
type LogsHandler struct {
	logFile string
}

type logsResponse struct {
	File  string   `json:"file"`
	Lines []string `json:"lines"`
}

func NewLogsHandler(logFile string) *LogsHandler {
	return &LogsHandler{logFile: logFile}
}

// Tail serves /api/logs?lines=N.
func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	if h.logFile == "" {
		writeError(w, http.StatusNotFound, "no log file configured")
		return
	}

	n := defaultLogLines
	if v := strings.TrimSpace(r.URL.Query().Get("lines")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive number")
			return
		}
		n = min(parsed, maxLogLines)
	}

	file, err := os.Open(h.logFile)
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusOK, logsResponse{File: h.logFile, Lines: []string{}})
		return
	}
	if err != nil {
		respondErr(w, "logs", err)
		return
	}
	defer file.Close()

	lines, err := readLastNLines(file, n)
	if err != nil {
		respondErr(w, "logs", err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, logsResponse{File: h.logFile, Lines: lines})
}

// readLastNLines reads backwards in chunks so large files are not loaded whole.
func readLastNLines(file *os.File, n int) ([]string, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return nil, nil
	}

	const chunkSize = 64 * 1024
	var lines []string
	var leftover []byte

	position := stat.Size()

	for position > 0 && len(lines) < n {
		readSize := int64(chunkSize)
		if position < readSize {
			readSize = position
		}
		position -= readSize

		chunk := make([]byte, readSize)
		_, err := file.ReadAt(chunk, position)
		if err != nil && err != io.EOF {
			return nil, err
		}

		chunk = append(chunk, leftover...)
		chunkLines := bytes.Split(chunk, []byte("\n"))

		// the first element may be the tail of a line that starts in the previous chunk
		leftover = chunkLines[0]

		for i := len(chunkLines) - 1; i > 0; i-- {
			line := string(bytes.TrimRight(chunkLines[i], "\r"))
			if line == "" && i == len(chunkLines)-1 {
				continue
			}
			lines = append(lines, line)
			if len(lines) >= n {
				break
			}
		}
	}

	if len(leftover) > 0 && len(lines) < n {
		lines = append(lines, string(leftover))
	}

	// collected newest first
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
