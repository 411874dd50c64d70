package world

import "context"

// Port is the narrow sensing/actuation surface the foreman core drives.
// Implementations (the websocket client, the test fake) own pathfinding,
// equip logic and the rest of low-level actuation. All calls are
// synchronous with bounded latency and may fault; the block grid is
// eventually consistent, so a successful Place may take a short delay to
// become visible to BlockAt.
type Port interface {
	// BlockAt returns the block identity at pos ("" or "AIR" for empty).
	BlockAt(ctx context.Context, pos Vec3i) (string, error)

	// Place puts blockType against the given face of the reference block.
	Place(ctx context.Context, blockType string, ref Vec3i, face Vec3i) error

	// Dig removes the block at pos.
	Dig(ctx context.Context, pos Vec3i) error

	// MoveTo walks the agent toward pos.
	MoveTo(ctx context.Context, pos Vec3i) error

	InventoryItems(ctx context.Context) ([]ItemStack, error)
	NearbyEntities(ctx context.Context, radius int) ([]Entity, error)
	AgentPosition(ctx context.Context) (Vec3i, error)
	AgentVitals(ctx context.Context) (Vitals, error)
	Weather(ctx context.Context) (Weather, error)
}
