// Package motor defines motor identifiers, movement directions and the two
// text vocabularies published to the broker: the selection payload sent on
// TopicSelect and the movement command sent on TopicControl.
package motor
