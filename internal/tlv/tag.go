package tlv

import "fmt"

// Tag identifies an element. Tag values are stable across format versions.
type Tag byte

// Vault parameter tags.
const (
	TagMagic          Tag = 0x01
	TagVersion        Tag = 0x02
	TagSalt           Tag = 0x03
	TagKDFMemory      Tag = 0x04
	TagKDFIterations  Tag = 0x05
	TagKDFParallelism Tag = 0x06
	TagIV             Tag = 0x07
	TagContent        Tag = 0x08
)

// VaultTags lists every tag of the vault parameter record in ascending order.
var VaultTags = []Tag{
	TagMagic,
	TagVersion,
	TagSalt,
	TagKDFMemory,
	TagKDFIterations,
	TagKDFParallelism,
	TagIV,
	TagContent,
}

var tagNames = map[Tag]string{
	TagMagic:          "Magic",
	TagVersion:        "Version",
	TagSalt:           "Salt",
	TagKDFMemory:      "KdfMemory",
	TagKDFIterations:  "KdfIterations",
	TagKDFParallelism: "KdfParallelism",
	TagIV:             "Iv",
	TagContent:        "Content",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(0x%02x)", byte(t))
}

// Element is a single decoded tag/value pair.
type Element struct {
	Tag   Tag
	Value []byte
}
