package outbox

// Event is the domain event envelope written to the outbox table. The kafka
// topic name equals EventType, so notification consumers subscribe per
// lifecycle step.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
