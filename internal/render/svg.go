package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"floorplan/api/internal/coords"
)

// SVG serializes draw commands for previews and debugging.
func SVG(commands []Command, width, height float64) string {
	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(width), formatFloat(height), formatFloat(width), formatFloat(height)))
	builder.WriteString("\n")

	for _, cmd := range commands {
		elem := element(cmd)
		if elem == "" {
			continue
		}
		builder.WriteString("  ")
		builder.WriteString(elem)
		builder.WriteString("\n")
		for _, h := range cmd.Handles {
			builder.WriteString(fmt.Sprintf(`  <rect class="handle" x="%s" y="%s" width="6" height="6" fill="#fff" stroke="#0969da" />`,
				formatFloat(h.X-3), formatFloat(h.Y-3)))
			builder.WriteString("\n")
		}
	}

	builder.WriteString(`</svg>`)
	return builder.String()
}

func element(cmd Command) string {
	attrs := styleAttrs(cmd)
	switch cmd.Primitive {
	case PrimitiveCircle:
		return fmt.Sprintf(`<circle%s cx="%s" cy="%s" r="%s"%s />`,
			idAttr(cmd), formatFloat(cmd.X), formatFloat(cmd.Y), formatFloat(cmd.Radius), attrs)
	case PrimitiveRect, PrimitiveStamp:
		rect := fmt.Sprintf(`<rect%s x="%s" y="%s" width="%s" height="%s"%s%s />`,
			idAttr(cmd), formatFloat(cmd.X), formatFloat(cmd.Y), formatFloat(cmd.Width), formatFloat(cmd.Height),
			rotation(cmd), attrs)
		if cmd.Text == "" {
			return rect
		}
		return rect + textElement(cmd, cmd.X+4, cmd.Y+cmd.Style.FontSize+4)
	case PrimitiveEllipse:
		return fmt.Sprintf(`<ellipse%s cx="%s" cy="%s" rx="%s" ry="%s"%s%s />`,
			idAttr(cmd), formatFloat(cmd.X+cmd.Width/2), formatFloat(cmd.Y+cmd.Height/2),
			formatFloat(cmd.Width/2), formatFloat(cmd.Height/2), rotation(cmd), attrs)
	case PrimitiveLine:
		if len(cmd.Points) < 2 {
			return ""
		}
		return fmt.Sprintf(`<line%s x1="%s" y1="%s" x2="%s" y2="%s"%s />`,
			idAttr(cmd), formatFloat(cmd.Points[0].X), formatFloat(cmd.Points[0].Y),
			formatFloat(cmd.Points[1].X), formatFloat(cmd.Points[1].Y), attrs)
	case PrimitivePolyline:
		return fmt.Sprintf(`<polyline%s points="%s" fill="none"%s />`, idAttr(cmd), formatPoints(cmd.Points), strokeAttrs(cmd))
	case PrimitivePolygon:
		return fmt.Sprintf(`<polygon%s points="%s"%s />`, idAttr(cmd), formatPoints(cmd.Points), attrs)
	case PrimitiveText:
		return textElement(cmd, cmd.X, cmd.Y+cmd.Style.FontSize)
	}
	return ""
}

func textElement(cmd Command, x, y float64) string {
	family := cmd.Style.FontFamily
	if family == "" {
		family = "sans-serif"
	}
	return fmt.Sprintf(`<text x="%s" y="%s" font-size="%s" font-family="%s" fill="%s" opacity="%s"%s>%s</text>`,
		formatFloat(x), formatFloat(y), formatFloat(cmd.Style.FontSize), html.EscapeString(family),
		html.EscapeString(cmd.Style.Stroke), formatFloat(cmd.Style.Opacity), rotation(cmd), html.EscapeString(cmd.Text))
}

func idAttr(cmd Command) string {
	if cmd.MarkerID == "" {
		return ""
	}
	return fmt.Sprintf(` id="%s"`, html.EscapeString(cmd.MarkerID))
}

func strokeAttrs(cmd Command) string {
	out := fmt.Sprintf(` stroke="%s" stroke-width="%s" opacity="%s"`,
		html.EscapeString(cmd.Style.Stroke), formatFloat(cmd.Style.StrokeWidth), formatFloat(cmd.Style.Opacity))
	if cmd.Preview {
		out += ` stroke-dasharray="4 2"`
	}
	return out
}

func styleAttrs(cmd Command) string {
	fill := cmd.Style.Fill
	if fill == "" {
		fill = "none"
	}
	return fmt.Sprintf(` fill="%s"`, html.EscapeString(fill)) + strokeAttrs(cmd)
}

func rotation(cmd Command) string {
	if cmd.RotationDegrees == 0 {
		return ""
	}
	cx := cmd.X + cmd.Width/2
	cy := cmd.Y + cmd.Height/2
	return fmt.Sprintf(` transform="rotate(%s %s %s)"`, formatFloat(cmd.RotationDegrees), formatFloat(cx), formatFloat(cy))
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

func formatPoints(points []coords.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = formatFloat(p.X) + "," + formatFloat(p.Y)
	}
	return strings.Join(parts, " ")
}
