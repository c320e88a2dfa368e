package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-catalog/internal/domain/food"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeFood(e *jx.Encoder, f *food.Food) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(f.ID)
	e.FieldStart("name")
	e.Str(f.Name)
	e.FieldStart("price")
	e.Raw([]byte(f.Price.String()))
	e.FieldStart("tags")
	encodeStrings(e, f.Tags)
	e.FieldStart("origins")
	encodeStrings(e, f.Origins)
	e.FieldStart("cookTime")
	e.Str(f.CookTime)
	e.FieldStart("imageUrl")
	e.Str(f.ImageURL)
	e.FieldStart("favorite")
	e.Bool(f.Favorite)
	if !f.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(f.CreatedAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}

func encodeFoods(e *jx.Encoder, foods []food.Food) {
	e.ArrStart()
	for i := range foods {
		encodeFood(e, &foods[i])
	}
	e.ArrEnd()
}

func encodeTags(e *jx.Encoder, tags []food.TagCount) {
	e.ArrStart()
	for _, t := range tags {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(t.Name)
		e.FieldStart("count")
		e.Int(t.Count)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// encodeStrings writes s as an array; nil is written as [].
func encodeStrings(e *jx.Encoder, s []string) {
	e.ArrStart()
	for _, v := range s {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeError(e *jx.Encoder, status int, message string, cause error) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	if cause != nil {
		e.FieldStart("error")
		e.Str(cause.Error())
	}
	e.ObjEnd()
}

func encodeMessage(e *jx.Encoder, key, value string) {
	e.ObjStart()
	e.FieldStart(key)
	e.Str(value)
	e.ObjEnd()
}

// decodeFoodJSON reads a food document into form values so JSON and
// multipart bodies share one parsing path. Scalars may be strings or
// numbers; tags and origins may be a list or a comma-separated string.
func decodeFoodJSON(d *jx.Decoder) (url.Values, error) {
	values := url.Values{}
	if d.Next() != jx.Object {
		return nil, errors.New("body must be a JSON object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "name", "price", "cookTime", "imageUrl":
			v, ok, err := decodeScalar(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			if ok {
				values.Set(key, v)
			}
		case "tags", "origins":
			list, err := decodeList(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			values[key] = list
		case "favorite":
			switch d.Next() {
			case jx.Null:
				return d.Null()
			case jx.Bool:
				b, err := d.Bool()
				if err != nil {
					return errors.Wrap(err, key)
				}
				values.Set(key, strconv.FormatBool(b))
			default:
				v, ok, err := decodeScalar(d)
				if err != nil {
					return errors.Wrap(err, key)
				}
				if ok {
					values.Set(key, v)
				}
			}
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func decodeScalar(d *jx.Decoder) (string, bool, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		return s, err == nil, err
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	case jx.Null:
		return "", false, d.Null()
	default:
		return "", false, errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeList(d *jx.Decoder) ([]string, error) {
	switch d.Next() {
	case jx.Array:
		var out []string
		err := d.Arr(func(d *jx.Decoder) error {
			v, ok, err := decodeScalar(d)
			if ok {
				out = append(out, v)
			}
			return err
		})
		return out, err
	case jx.Null:
		return nil, d.Null()
	default:
		v, ok, err := decodeScalar(d)
		if err != nil || !ok {
			return nil, err
		}
		return []string{v}, nil
	}
}
