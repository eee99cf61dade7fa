package deploy

import (
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"sitehost/internal/workspace"
)

// newProjectID returns project_<unix-millis>_<random>. The random part is the
// entropy segment of a ULID, so ids stay unique even within one millisecond.
func newProjectID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	random := strings.ToLower(id.String()[10:])
	return workspace.ProjectDirPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}
