package gpu

type BindingKind uint8

const (
	BindImage BindingKind = iota
	BindSampler
	BindStorage
	BindUniform
)

type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

// Binding attaches a resource to a numbered slot of a given kind for one
// dispatch or draw. Mip selects the level for image bindings and Offset the
// first byte seen through a buffer binding.
type Binding struct {
	Kind     BindingKind
	Slot     int
	Resource Resource
	Access   Access
	Mip      int
	Offset   int
}

func (b Binding) Reads() bool  { return b.Access&AccessRead != 0 }
func (b Binding) Writes() bool { return b.Access&AccessWrite != 0 }

func ImageRead(slot int, t Texture, mip int) Binding {
	return Binding{Kind: BindImage, Slot: slot, Resource: t, Access: AccessRead, Mip: mip}
}

func ImageWrite(slot int, t Texture, mip int) Binding {
	return Binding{Kind: BindImage, Slot: slot, Resource: t, Access: AccessWrite, Mip: mip}
}

func ImageReadWrite(slot int, t Texture, mip int) Binding {
	return Binding{Kind: BindImage, Slot: slot, Resource: t, Access: AccessReadWrite, Mip: mip}
}

func Sampler(slot int, t Texture) Binding {
	return Binding{Kind: BindSampler, Slot: slot, Resource: t, Access: AccessRead}
}

func StorageRead(slot int, b Buffer) Binding {
	return Binding{Kind: BindStorage, Slot: slot, Resource: b, Access: AccessRead}
}

// StorageReadAt binds b so the program sees its contents from offset on.
func StorageReadAt(slot int, b Buffer, offset int) Binding {
	return Binding{Kind: BindStorage, Slot: slot, Resource: b, Access: AccessRead, Offset: offset}
}

func StorageWrite(slot int, b Buffer) Binding {
	return Binding{Kind: BindStorage, Slot: slot, Resource: b, Access: AccessWrite}
}

func StorageReadWrite(slot int, b Buffer) Binding {
	return Binding{Kind: BindStorage, Slot: slot, Resource: b, Access: AccessReadWrite}
}

func Uniform(slot int, b Buffer) Binding {
	return Binding{Kind: BindUniform, Slot: slot, Resource: b, Access: AccessRead}
}
