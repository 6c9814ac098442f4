package objdb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Commit is a point-in-time record tying a Tree to its dependency
// commits. There is no author/committer distinction here the way the
// teacher's CommitObject has one: package ingestion has a single actor
// (relaycache itself), but the canonical line-oriented encoding below is
// directly modeled on commit.go's "tree <hex>\nparent <hex>\n...\n<message>"
// layout, including a trailing free-text message line.
type Commit struct {
	Tree    ID
	Parents []ID
	Time    time.Time
	Message string
}

func canonicalCommitBytes(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "time %d\n", c.Time.Unix())
	buf.WriteString("\n")
	buf.WriteString(c.Message)
	buf.WriteString("\n")
	return buf.Bytes()
}

func parseCommitBytes(data []byte) (*Commit, error) {
	text := string(data)
	headerBody := strings.SplitN(text, "\n\n", 2)
	header := headerBody[0]
	message := ""
	if len(headerBody) == 2 {
		message = strings.TrimSuffix(headerBody[1], "\n")
	}

	c := &Commit{}
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: malformed commit header line %q", ErrCorrupt, line)
		}
		switch fields[0] {
		case "tree":
			id, err := ParseID(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			c.Tree = id
		case "parent":
			id, err := ParseID(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			c.Parents = append(c.Parents, id)
		case "time":
			unix, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad commit time: %v", ErrCorrupt, err)
			}
			c.Time = time.Unix(unix, 0).UTC()
		default:
			return nil, fmt.Errorf("%w: unknown commit header key %q", ErrCorrupt, fields[0])
		}
	}
	c.Message = message
	return c, nil
}
