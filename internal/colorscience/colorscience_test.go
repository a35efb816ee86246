package colorscience

import "testing"

func TestTemperatureFromNeutralConvergesForGrayNeutral(t *testing.T) {
	temperature, _ := TemperatureFromNeutral([3]float64{1, 1, 1})
	if temperature < 2000 || temperature > 12000 {
		t.Fatalf("expected temperature within search bounds, got %f", temperature)
	}
}

func TestTemperatureFromNeutralWarmerForRedHeavyNeutral(t *testing.T) {
	warm, _ := TemperatureFromNeutral([3]float64{1.3, 1, 0.7})
	cool, _ := TemperatureFromNeutral([3]float64{0.7, 1, 1.3})
	if warm >= cool {
		t.Fatalf("expected a red-heavy neutral to resolve to a lower (warmer) CCT than a blue-heavy one: warm=%f cool=%f", warm, cool)
	}
}

func TestCameraToPCSProducesInvertibleMatrix(t *testing.T) {
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	cam, pcs, white := CameraToPCS(5000, 2856, 6504, identity, identity, identity, identity, false)
	if cam == nil || pcs == nil {
		t.Fatal("expected non-nil matrices")
	}
	for i, v := range white {
		if v == 0 {
			t.Fatalf("expected non-zero camera white component %d", i)
		}
	}
}
