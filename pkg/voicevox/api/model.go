package api

import (
	"encoding/json"
	"fmt"
)

// ----------------------------------------------------------------------
// データモデル (API応答)
// ----------------------------------------------------------------------

const (
	fieldSpeedScale = "speedScale"
	fieldPitchScale = "pitchScale"
)

// AudioQuery は /audio_query APIの応答に対応する型です。
// 調整対象の speedScale と pitchScale だけを型付きで公開し、
// accent_phrases などそれ以外のフィールドは受け取ったまま /synthesis へ送り返します。
type AudioQuery struct {
	SpeedScale float64
	PitchScale float64

	fields map[string]json.RawMessage
}

// NewAudioQuery は指定した話速・音高だけを持つクエリを生成します。
func NewAudioQuery(speedScale, pitchScale float64) *AudioQuery {
	return &AudioQuery{
		SpeedScale: speedScale,
		PitchScale: pitchScale,
		fields:     make(map[string]json.RawMessage),
	}
}

// Field は型付きで公開されていないフィールドの生のJSON値を返します。
func (q *AudioQuery) Field(name string) (json.RawMessage, bool) {
	v, ok := q.fields[name]
	return v, ok
}

// SetField は任意のフィールドを上書きします。speedScale と pitchScale は構造体の値が優先されます。
func (q *AudioQuery) SetField(name string, value json.RawMessage) {
	if q.fields == nil {
		q.fields = make(map[string]json.RawMessage)
	}
	q.fields[name] = value
}

func (q *AudioQuery) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("audio query が null です")
	}

	for _, name := range []string{fieldSpeedScale, fieldPitchScale} {
		v, ok := raw[name]
		if !ok {
			return fmt.Errorf("audio query に必須フィールド '%s' がありません", name)
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("audio query のフィールド '%s' が数値ではありません: %w", name, err)
		}
		if name == fieldSpeedScale {
			q.SpeedScale = f
		} else {
			q.PitchScale = f
		}
		delete(raw, name)
	}

	q.fields = raw
	return nil
}

func (q AudioQuery) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(q.fields)+2)
	for k, v := range q.fields {
		out[k] = v
	}
	out[fieldSpeedScale] = q.SpeedScale
	out[fieldPitchScale] = q.PitchScale
	return json.Marshal(out)
}
