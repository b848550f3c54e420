// README: Identifier type shared by orders, users and gigs.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return id == "" }
