package cache

import (
	"fmt"
)

// Keys follow the namespace "{entityType}_{discriminator}" where the
// discriminator is "id_{id}" for a single entity or "all" for the collection.

// EntityKey returns the cache key of one entity, e.g. "Sensor_id_42".
func EntityKey(entityType string, id any) string {
	return fmt.Sprintf("%s_id_%v", entityType, id)
}

// CollectionKey returns the cache key of a whole collection, e.g. "Sensor_all".
func CollectionKey(entityType string) string {
	return entityType + "_all"
}

// TypePrefix returns the prefix shared by every key of an entity type, e.g. "Sensor_".
func TypePrefix(entityType string) string {
	return entityType + "_"
}
