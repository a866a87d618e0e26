package model

// Path represents a file system path.
type Path string

// Instance is an opaque, reusable isolated execution environment. It is owned
// by exactly one worker at a time; otherwise it is held by the resource pool.
type Instance struct {
	ID string
}

func (i Instance) String() string {
	return i.ID
}
