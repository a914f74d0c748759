package protocol

import (
	"bytes"
	"testing"
)

func TestTileDatagramRoundTrip(t *testing.T) {
	t.Parallel()
	tile := TileDatagram{
		FrameID: 5, FrameType: FrameTypeKey, TileID: 2,
		FragID: 0, FragCount: 1, Width: 320, Height: 180,
		SendTsUs: 777, Payload: []byte("tile-bytes"),
	}
	got, err := ParseTileDatagram(SerializeTileDatagram(&tile))
	if err != nil {
		t.Fatal(err)
	}
	if got.TileID != tile.TileID || !bytes.Equal(got.Payload, tile.Payload) {
		t.Errorf("got %+v, want %+v", got, tile)
	}
}
