package orders

// All lifecycle events of the order go to one topic so a consumer sees them
// in order per partition.
const TopicOrderEvents = "order.events"

// Partition key = order_id, keeping each order's events in sequence.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
