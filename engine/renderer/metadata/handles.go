package metadata

// RendererDataHandle addresses a slot owned by one pass's handle pool.
// Callers hold it by value and hand it back to the owning pass.
type RendererDataHandle int32

/** @brief Handle value meaning "no slot"; effects holding it are disabled. */
const InvalidHandle RendererDataHandle = -1

func (h RendererDataHandle) Valid() bool {
	return h >= 0
}
