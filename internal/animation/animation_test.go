package animation_test

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wader/braillify/internal/animation"
)

func TestRoundTrip(t *testing.T) {
	frame := func(i int) string {
		return "\x1b[H" + strings.Repeat("⣿", i+1) + "\n⠁ \n"
	}

	for _, n := range []int{0, 1, 5} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			d := animation.Document{Delay: 40}
			for i := 0; i < n; i++ {
				d.Append(frame(i))
			}

			bs, err := animation.Marshal(d)
			require.NoError(t, err)
			assert.True(t, animation.IsDocument(bs))

			got, err := animation.Unmarshal(bs)
			require.NoError(t, err)
			assert.Equal(t, 40, got.Delay)
			require.Len(t, got.Frames, n)
			for i, f := range got.Frames {
				assert.Equal(t, frame(i), f)
			}

			again, err := animation.Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, bs, again)
		})
	}
}

func TestUnmarshalExample(t *testing.T) {
	const doc = "Braillify;Frame Delay:100;Data:AB#CD#"

	d, err := animation.Unmarshal([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, animation.Document{Delay: 100, Frames: []string{"AB", "CD"}}, d)

	var buf bytes.Buffer
	require.NoError(t, d.Encode(&buf))
	assert.Equal(t, doc, buf.String())
}

func TestUnmarshalLenient(t *testing.T) {
	d, err := animation.Decode(strings.NewReader("Braillify;Frame Delay:5;Data:AB#C;D"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AB", "C;D"}, d.Frames)
}

func TestUnmarshalMalformed(t *testing.T) {
	testCases := []string{
		"",
		"Braillify",
		"Braillify;Frame Delay:100",
		"Other;Frame Delay:100;Data:AB#",
		"Braillify;Delay:100;Data:AB#",
		"Braillify;Frame Delay:abc;Data:AB#",
		"Braillify;Frame Delay:-1;Data:AB#",
		"Braillify;Frame Delay:100;Frames:AB#",
	}
	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			_, err := animation.Unmarshal([]byte(tc))
			var se *animation.SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestEncodeRejectsDelimiter(t *testing.T) {
	_, err := animation.Marshal(animation.Document{Delay: 1, Frames: []string{"a#b"}})
	assert.True(t, errors.Is(err, animation.ErrFrameDelimiter))
}

func TestIsDocument(t *testing.T) {
	assert.True(t, animation.IsDocument([]byte("Braillify;Frame Delay:1;Data:")))
	assert.False(t, animation.IsDocument([]byte("Braillify")))
	assert.False(t, animation.IsDocument([]byte("\x89PNG\r\n")))
}
