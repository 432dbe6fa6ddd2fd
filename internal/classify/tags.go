package classify

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

// tagNamespacePrefix is the conventional user-tag namespace the billing
// exporter prepends to every key.
const tagNamespacePrefix = "user:"

// ParseTags flattens the free-form JSON tag payload of a raw record.
// A payload that fails to parse is logged and treated as an empty tag
// set rather than propagated.
//
// Keys containing a "." are dropped: dotted keys collide with the
// coordinator's filter path syntax. TODO: include them once the
// coordinator escapes dots in filter keys.
func ParseTags(payload *string, log zerolog.Logger) map[string]interface{} {
	tags := map[string]interface{}{}

	if payload == nil || *payload == "" {
		return tags
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(*payload), &decoded); err != nil {
		log.Debug().Err(err).Msg("unparsable tag payload, treating as empty")
		return tags
	}

	for key, value := range decoded {
		if strings.Contains(key, ".") {
			continue
		}
		key = strings.ReplaceAll(key, tagNamespacePrefix, "")
		tags[key] = value
	}

	return tags
}
