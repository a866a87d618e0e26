package adapter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// ReadIDList reads a newline-delimited list of mutation ids. Blank lines and
// lines starting with '#' are skipped; the order of the file is preserved.
func ReadIDList(path m.Path) ([]int64, error) {
	// #nosec G304 - the work-item file is supplied by the operator
	file, err := os.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("open work-item file: %w", err)
	}

	defer func() { _ = file.Close() }()

	var ids []int64

	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid mutation id %q", path, lineNo, line)
		}

		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read work-item file: %w", err)
	}

	return ids, nil
}

// WriteIDList writes ids one per line, the format ReadIDList accepts.
func WriteIDList(path m.Path, ids []int64) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}

	return writeFileAtomic(string(path), []byte(b.String()))
}
