package profile_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/svc/profile"
)

func TestField(t *testing.T) {
	t.Parallel()

	var unset profile.Field[string]
	assert.False(t, unset.IsSet())
	assert.False(t, unset.IsNull())
	assert.Nil(t, unset.Ptr())

	set := profile.Set("x")
	v, ok := set.Value()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, set.IsSet())
	assert.False(t, set.IsNull())

	null := profile.Null[string]()
	assert.True(t, null.IsSet())
	assert.True(t, null.IsNull())
	_, ok = null.Value()
	assert.False(t, ok)

	s := "y"
	assert.Equal(t, profile.Set("y"), profile.FromPtr(&s))
	assert.Equal(t, profile.Null[string](), profile.FromPtr[string](nil))
}

func TestField_ApplyTo(t *testing.T) {
	t.Parallel()

	old := "old"
	dst := &old

	var unset profile.Field[string]
	unset.ApplyTo(&dst)
	require.NotNil(t, dst)
	assert.Equal(t, "old", *dst)

	profile.Set("new").ApplyTo(&dst)
	assert.Equal(t, "new", *dst)

	profile.Null[string]().ApplyTo(&dst)
	assert.Nil(t, dst)
}

func TestPatch_JSON(t *testing.T) {
	t.Parallel()

	var p profile.Patch
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Ann","bio":null}`), &p))

	name, ok := p.Name.Value()
	assert.True(t, ok)
	assert.Equal(t, "Ann", name)
	assert.True(t, p.Bio.IsNull())
	assert.False(t, p.Country.IsSet(), "absent key means no change")
	assert.False(t, p.BannerImage.IsSet())
	assert.False(t, p.IsEmpty())

	var empty profile.Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"name":42}`), &p))
}

func TestPatch_Columns(t *testing.T) {
	t.Parallel()

	p := profile.Patch{
		BannerImage: profile.Set("https://cdn.example.com/b.jpg"),
		Name:        profile.Null[string](),
	}
	cols := p.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "name", cols[0].Name)
	assert.Nil(t, cols[0].Value)
	assert.Equal(t, "banner_image", cols[1].Name)
	assert.Equal(t, "https://cdn.example.com/b.jpg", *cols[1].Value)
}

func TestProfile_Clone(t *testing.T) {
	t.Parallel()

	name := "Ann"
	p := &profile.Profile{UserID: "u1", Name: &name}
	c := p.Clone()
	*c.Name = "Bob"
	assert.Equal(t, "Ann", *p.Name)

	var nilProfile *profile.Profile
	assert.Nil(t, nilProfile.Clone())
}
