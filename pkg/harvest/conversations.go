package harvest

import (
	"fmt"
	"os"

	mapset "github.com/deckarep/golang-set/v2"

	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/storage"
	"tweetharvest/pkg/twitter"
)

// ConversationKeys scans every JSON artifact below root and returns the
// distinct conversation ids they reference, in order of first appearance.
// The result is a key list for the conversation endpoint. Unreadable
// artifacts are logged and skipped.
func ConversationKeys(root string, log logger.Logger) ([]string, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("artifact directory: %w", err)
	}

	files, err := storage.JSONArtifacts(root)
	if err != nil {
		return nil, err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var keys []string
	for _, path := range files {
		body, err := os.ReadFile(path)
		if err != nil {
			log.WarnWithFields("Skipping unreadable artifact", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		ids, err := twitter.ConversationIDs(body)
		if err != nil {
			log.WarnWithFields("Skipping unparseable artifact", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		for _, id := range ids {
			if seen.Add(id) {
				keys = append(keys, id)
			}
		}
	}

	log.InfoWithFields("Conversation ids extracted", map[string]interface{}{
		"artifacts":     len(files),
		"conversations": len(keys),
	})
	return keys, nil
}
