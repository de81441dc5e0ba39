package annotation

type Kind string

const (
	KindEquipment Kind = "equipment"
	KindNote      Kind = "note"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindLine      Kind = "line"
	KindPolyline  Kind = "polyline"
	KindPolygon   Kind = "polygon"
	KindStamp     Kind = "stamp"
	KindText      Kind = "text"
)

// Kinds lists every marker kind.
var Kinds = []Kind{
	KindEquipment, KindNote, KindRectangle, KindEllipse, KindLine,
	KindPolyline, KindPolygon, KindStamp, KindText,
}

func (k Kind) Valid() bool {
	switch k {
	case KindEquipment, KindNote, KindRectangle, KindEllipse, KindLine,
		KindPolyline, KindPolygon, KindStamp, KindText:
		return true
	}
	return false
}

// Sizable reports whether the kind carries width and height.
func (k Kind) Sizable() bool {
	switch k {
	case KindNote, KindRectangle, KindEllipse, KindStamp, KindText:
		return true
	case KindEquipment, KindLine, KindPolyline, KindPolygon:
		return false
	}
	return false
}

// RequiresSize reports whether width and height are mandatory.
func (k Kind) RequiresSize() bool {
	switch k {
	case KindNote, KindRectangle, KindEllipse:
		return true
	case KindEquipment, KindLine, KindPolyline, KindPolygon, KindStamp, KindText:
		return false
	}
	return false
}

// MinPoints is the smallest point count for vertex kinds, 0 otherwise.
func (k Kind) MinPoints() int {
	switch k {
	case KindPolyline:
		return 2
	case KindPolygon:
		return 3
	case KindEquipment, KindNote, KindRectangle, KindEllipse, KindLine, KindStamp, KindText:
		return 0
	}
	return 0
}

type EquipmentType string

const (
	EquipmentAccessPoint EquipmentType = "access-point"
	EquipmentCamera      EquipmentType = "camera"
	EquipmentElevator    EquipmentType = "elevator"
	EquipmentIntercom    EquipmentType = "intercom"
)

func (e EquipmentType) Valid() bool {
	switch e {
	case EquipmentAccessPoint, EquipmentCamera, EquipmentElevator, EquipmentIntercom:
		return true
	}
	return false
}
