package gitrepo

import (
	"strings"
	"time"

	"github.com/copybara-oss/copybara/pkg/revision"
)

// recordSep/headerEnd delimit the custom `git log` format this package
// emits so one pass of strings.Split recovers every field of every commit,
// including a multi-line message body and its changed-file list, without
// ambiguity. \x01/\x03 are control bytes that never occur in author
// identities or commit messages in practice, the same assumption the
// teacher's own ParseCommitWithChangedFilesList makes about plain newlines
// (it distinguishes a hash line from a file line positionally instead).
const (
	recordSep = "\x01"
	fieldSep  = "\x02"
	headerEnd = "\x03"
)

// logFormat is passed as --format=<logFormat> to git log.
var logFormat = recordSep + "%H" + fieldSep + "%P" + fieldSep + "%an" + fieldSep + "%ae" +
	fieldSep + "%aI" + fieldSep + "%cn" + fieldSep + "%ce" + fieldSep + "%cI" + fieldSep + "%B" + headerEnd

// parseLogOutput parses the stdout of
// `git log --format=<logFormat> --name-only <revRange>` into Changes, in
// the order git emitted them (reverse-chronological, unless --reverse was
// passed to the underlying command).
func parseLogOutput(out string) ([]revision.Change, error) {
	var changes []revision.Change

	records := strings.Split(out, recordSep)
	for _, rec := range records {
		if rec == "" {
			continue
		}

		headerAndBody, fileBlock, _ := strings.Cut(rec, headerEnd)
		fields := strings.SplitN(headerAndBody, fieldSep, 9)
		if len(fields) < 9 {
			continue
		}

		sha, parentsRaw, an, ae, aI, cn, ce, cI, body := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7], fields[8]

		var parents []revision.Revision
		for _, p := range strings.Fields(parentsRaw) {
			parents = append(parents, revision.Revision{SHA1: p})
		}

		committerTime, err := time.Parse(time.RFC3339, cI)
		if err != nil {
			committerTime, err = time.Parse(time.RFC3339, aI)
			if err != nil {
				committerTime = time.Time{}
			}
		}

		var files []string
		fileBlock = strings.TrimPrefix(fileBlock, "\n")
		fileBlock = strings.TrimRight(fileBlock, "\n")
		for _, line := range strings.Split(fileBlock, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				files = append(files, line)
			}
		}

		body = strings.TrimRight(body, "\n")

		changes = append(changes, revision.Change{
			Revision:       revision.Revision{SHA1: sha},
			Parents:        parents,
			Author:         revision.Author{Name: an, Email: ae},
			Committer:      revision.Author{Name: cn, Email: ce},
			ZonedTimestamp: committerTime,
			Message:        body,
			Files:          files,
			IsMerge:        len(parents) > 1,
		})
	}

	return changes, nil
}
