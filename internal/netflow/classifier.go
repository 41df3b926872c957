package netflow

import (
	"strings"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

// Classifier tags transfers against a fixed labeled address set.
type Classifier struct {
	labels map[string]string
}

func NewClassifier(addresses []models.LabeledAddress) *Classifier {
	labels := make(map[string]string, len(addresses))
	for _, a := range addresses {
		labels[normalize(a.Address)] = a.Label
	}
	return &Classifier{labels: labels}
}

func (c *Classifier) Classify(ev models.TransferEvent) models.Tag {
	_, toLabeled := c.labels[normalize(ev.To)]
	_, fromLabeled := c.labels[normalize(ev.From)]
	switch {
	case toLabeled && fromLabeled:
		return models.TagBoth
	case toLabeled:
		return models.TagIn
	case fromLabeled:
		return models.TagOut
	default:
		return models.TagNone
	}
}

// Label returns the label of a labeled address, or "" if it is not labeled.
func (c *Classifier) Label(address string) string {
	return c.labels[normalize(address)]
}

func (c *Classifier) Size() int {
	return len(c.labels)
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
